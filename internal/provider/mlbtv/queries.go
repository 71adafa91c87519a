package mlbtv

const initSessionMutation = `mutation initSession($device: InitSessionInput!, $clientType: ClientType!, $experience: ExperienceTypeInput) {
    initSession(device: $device, clientType: $clientType, experience: $experience) {
        deviceId
        sessionId
        entitlements {
            code
        }
        location {
            countryCode
            regionName
            zipCode
        }
        clientExperience
        features
    }
}`

const initPlaybackSessionMutation = `mutation initPlaybackSession(
    $adCapabilities: [AdExperienceType]
    $mediaId: String!
    $deviceId: String!
    $sessionId: String!
    $quality: PlaybackQuality
) {
    initPlaybackSession(
        adCapabilities: $adCapabilities
        mediaId: $mediaId
        deviceId: $deviceId
        sessionId: $sessionId
        quality: $quality
    ) {
        playbackSessionId
        playback {
            url
            token
            expiration
            cdn
        }
        heartbeatInfo {
            url
            interval
        }
    }
}`

const contentCollectionsQuery = `query contentCollections(
    $categories: [ContentGroupCategory!]
    $includeRestricted: Boolean = false
    $includeSpoilers: Boolean = false
    $limit: Int = 10,
    $skip: Int = 0
) {
    contentCollections(
        categories: $categories
        includeRestricted: $includeRestricted
        includeSpoilers: $includeSpoilers
        limit: $limit
        skip: $skip
    ) {
        title
        category
        contents {
            contentId
            mediaId
            title
            mediaState {
                state
                mediaType
            }
        }
    }
}`
