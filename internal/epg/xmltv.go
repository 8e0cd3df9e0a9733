// Package epg imports XMLTV guide data into the program store.
package epg

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voyagen/streamshelf/internal/fetcher"
	"github.com/voyagen/streamshelf/internal/models"
	"github.com/voyagen/streamshelf/internal/store"
)

// xmltvTime is the XMLTV timestamp layout. Some feeds omit the zone offset.
const (
	xmltvTime       = "20060102150405 -0700"
	xmltvTimeNoZone = "20060102150405"
)

const batchSize = 500

// programmeXML is one <programme> element.
type programmeXML struct {
	Channel string   `xml:"channel,attr"`
	Start   string   `xml:"start,attr"`
	Stop    string   `xml:"stop,attr"`
	Titles  []string `xml:"title"`
	Descs   []string `xml:"desc"`
}

// Importer writes XMLTV programmes to a store.
type Importer struct {
	store  store.Store
	getter fetcher.Getter
	logger *zap.Logger
	now    func() time.Time
}

// NewImporter returns an Importer. getter is only needed for FetchAndImport.
func NewImporter(s store.Store, g fetcher.Getter, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: s, getter: g, logger: logger, now: time.Now}
}

// FetchAndImport downloads an XMLTV document (plain or gzip) and imports it.
func (im *Importer) FetchAndImport(ctx context.Context, url string) (int, error) {
	body, err := im.getter.Get(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("fetch epg: %w", err)
	}
	return im.ImportXMLTV(ctx, bytes.NewReader(body))
}

// ImportXMLTV streams programmes from r into the store and returns how many were
// stored. Programmes are keyed by their XMLTV channel id, which matches a
// channel's epg_channel_id (tvg-id for M3U sources). Entries with unparseable
// or empty intervals are skipped.
func (im *Importer) ImportXMLTV(ctx context.Context, r io.Reader) (int, error) {
	r, err := maybeGunzip(r)
	if err != nil {
		return 0, err
	}
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var (
		batch   []models.EpgProgram
		stored  int
		skipped int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := im.store.InsertPrograms(ctx, batch); err != nil {
			return fmt.Errorf("InsertPrograms: %w", err)
		}
		stored += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stored, fmt.Errorf("parse xmltv: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "programme" {
			continue
		}
		var px programmeXML
		if err := dec.DecodeElement(&px, &se); err != nil {
			return stored, fmt.Errorf("parse xmltv programme: %w", err)
		}
		p, ok := toProgram(px)
		if !ok {
			skipped++
			continue
		}
		batch = append(batch, p)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return stored, err
			}
		}
	}
	if err := flush(); err != nil {
		return stored, err
	}
	im.logger.Info("xmltv imported", zap.Int("programs", stored), zap.Int("skipped", skipped))
	return stored, nil
}

// Sweep deletes programs that ended before now minus keep.
func (im *Importer) Sweep(ctx context.Context, keep time.Duration) (int64, error) {
	cutoff := im.now().Add(-keep).UnixMilli()
	n, err := im.store.DeleteProgramsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("DeleteProgramsBefore: %w", err)
	}
	im.logger.Debug("epg swept", zap.Int64("deleted", n))
	return n, nil
}

func toProgram(px programmeXML) (models.EpgProgram, bool) {
	channel := strings.TrimSpace(px.Channel)
	start, err1 := ParseTime(px.Start)
	stop, err2 := ParseTime(px.Stop)
	if channel == "" || err1 != nil || err2 != nil || !stop.After(start) {
		return models.EpgProgram{}, false
	}
	p := models.EpgProgram{
		ID:        ProgramID(channel, start),
		ChannelID: channel,
		Title:     firstText(px.Titles),
		StartTime: start.UnixMilli(),
		EndTime:   stop.UnixMilli(),
	}
	if d := firstText(px.Descs); d != "" {
		p.Description = &d
	}
	return p, true
}

// ProgramID derives a stable id so re-importing the same guide upserts in place.
func ProgramID(channelID string, start time.Time) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(channelID+"|"+start.UTC().Format(time.RFC3339))).String()
}

// ParseTime parses an XMLTV timestamp. A missing offset is read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(xmltvTime, s); err == nil {
		return t, nil
	}
	if len(s) >= len(xmltvTimeNoZone) {
		return time.Parse(xmltvTimeNoZone, s[:len(xmltvTimeNoZone)])
	}
	return time.Time{}, fmt.Errorf("bad xmltv time %q", s)
}

func firstText(vals []string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func maybeGunzip(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(2)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	}
	return br, nil
}
