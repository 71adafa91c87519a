// Package xmltv writes XMLTV guide documents.
package xmltv

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// TimeFormat is the XMLTV date layout.
const TimeFormat = "20060102150405 -0700"

// Channel is a guide channel.
type Channel struct {
	XMLName      xml.Name `xml:"channel"`
	ID           string   `xml:"id,attr"`
	DisplayNames []string `xml:"display-name"`
	Icon         *Icon    `xml:"icon,omitempty"`
}

// Icon references an image.
type Icon struct {
	Src string `xml:"src,attr"`
}

// Text is a language-tagged string.
type Text struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Programme is one guide listing.
type Programme struct {
	XMLName    xml.Name  `xml:"programme"`
	Start      time.Time `xml:"-"`
	Stop       time.Time `xml:"-"`
	StartAttr  string    `xml:"start,attr"`
	StopAttr   string    `xml:"stop,attr"`
	Channel    string    `xml:"channel,attr"`
	Title      Text      `xml:"title"`
	SubTitle   *Text     `xml:"sub-title,omitempty"`
	Desc       *Text     `xml:"desc,omitempty"`
	Categories []Text    `xml:"category"`
	Icon       *Icon     `xml:"icon,omitempty"`
	Live       *struct{} `xml:"live,omitempty"`
}

// Writer streams a <tv> document. Channels must precede programmes.
type Writer struct {
	enc          *xml.Encoder
	generator    string
	started      bool
	channelsDone bool
}

// NewWriter creates a writer that names generator in the tv element.
func NewWriter(w io.Writer, generator string) *Writer {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return &Writer{enc: enc, generator: generator}
}

func (w *Writer) tvStart() xml.StartElement {
	return xml.StartElement{
		Name: xml.Name{Local: "tv"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "generator-info-name"}, Value: w.generator}},
	}
}

// WriteHeader writes the declaration and opens <tv>.
func (w *Writer) WriteHeader() error {
	if w.started {
		return nil
	}
	if err := w.enc.EncodeToken(xml.ProcInst{Target: "xml", Inst: []byte(`version="1.0" encoding="UTF-8"`)}); err != nil {
		return fmt.Errorf("writing XML declaration: %w", err)
	}
	if err := w.enc.EncodeToken(w.tvStart()); err != nil {
		return fmt.Errorf("writing tv element: %w", err)
	}
	w.started = true
	return nil
}

// WriteChannel writes a channel element.
func (w *Writer) WriteChannel(ch *Channel) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	if w.channelsDone {
		return fmt.Errorf("channels must be written before programmes")
	}
	if err := w.enc.Encode(ch); err != nil {
		return fmt.Errorf("writing channel %s: %w", ch.ID, err)
	}
	return nil
}

// WriteProgramme writes a programme element.
func (w *Writer) WriteProgramme(p *Programme) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	w.channelsDone = true

	p.StartAttr = p.Start.Format(TimeFormat)
	p.StopAttr = p.Stop.Format(TimeFormat)
	if err := w.enc.Encode(p); err != nil {
		return fmt.Errorf("writing programme on %s: %w", p.Channel, err)
	}
	return nil
}

// Close closes <tv> and flushes.
func (w *Writer) Close() error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	if err := w.enc.EncodeToken(w.tvStart().End()); err != nil {
		return fmt.Errorf("closing tv element: %w", err)
	}
	return w.enc.Flush()
}

// LiveFlag marks a programme as live.
func LiveFlag() *struct{} { return &struct{}{} }
