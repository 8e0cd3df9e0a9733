package fetcher

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/voyagen/streamshelf/internal/models"
)

// WriteM3U serializes channels as an extended M3U playlist that Parse reads back
// with the same id, name, logo and group.
func WriteM3U(w io.Writer, channels []models.Channel) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("#EXTM3U\n"); err != nil {
		return err
	}
	for _, ch := range channels {
		line := "#EXTINF:-1"
		line += attr("tvg-id", ch.TvgID)
		line += attr("tvg-name", ch.TvgName)
		line += attr("tvg-logo", ch.LogoURL)
		line += attr("group-title", ch.Group)
		if _, err := fmt.Fprintf(bw, "%s,%s\n", line, clean(ch.Name)); err != nil {
			return err
		}
		if h := ch.Headers; !h.Empty() {
			if err := vlcOpt(bw, "http-referrer", h.Referrer); err != nil {
				return err
			}
			if err := vlcOpt(bw, "http-user-agent", h.UserAgent); err != nil {
				return err
			}
			if err := vlcOpt(bw, "http-origin", h.HTTPOrigin); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(bw, clean(ch.URL)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func attr(key string, v *string) string {
	if v == nil || *v == "" {
		return ""
	}
	return fmt.Sprintf(` %s="%s"`, key, attrEscaper.Replace(*v))
}

// Attribute values have no escape syntax, so embedded quotes become single quotes.
var (
	lineEscaper = strings.NewReplacer("\r", " ", "\n", " ")
	attrEscaper = strings.NewReplacer("\r", " ", "\n", " ", `"`, "'")
)

func clean(s string) string {
	return lineEscaper.Replace(s)
}

func vlcOpt(w io.Writer, key string, v *string) error {
	if v == nil {
		return nil
	}
	_, err := fmt.Fprintf(w, "#EXTVLCOPT:%s=%s\n", key, clean(*v))
	return err
}
