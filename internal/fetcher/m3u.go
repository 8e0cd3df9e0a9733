package fetcher

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/voyagen/streamshelf/internal/models"
)

var (
	reTvgName       = regexp.MustCompile(`tvg-name="([^"]*)"`)
	reTvgID         = regexp.MustCompile(`tvg-id="([^"]*)"`)
	reTvgLogo       = regexp.MustCompile(`tvg-logo="([^"]*)"`)
	reGroup         = regexp.MustCompile(`group-title="([^"]*)"`)
	reHTTPOrigin    = regexp.MustCompile(`http-origin=(.+)`)
	reHTTPReferrer  = regexp.MustCompile(`http-referrer=(.+)`)
	reHTTPUserAgent = regexp.MustCompile(`http-user-agent=(.+)`)
)

// Tags are matched case-sensitively.
const (
	extinfTag = "#EXTINF:"
	vlcOptTag = "#EXTVLCOPT:"
)

// Parse converts M3U text into channels in order of appearance. It never fails:
// missing attributes stay nil and URL lines without a preceding #EXTINF are dropped.
func Parse(text string) []models.Channel {
	var p m3uParser
	for _, line := range strings.Split(text, "\n") {
		p.feed(line)
	}
	return p.channels
}

// ParseM3U is Parse over a reader. The only error source is r itself; lines have
// no length limit.
func ParseM3U(r io.Reader) ([]models.Channel, error) {
	var p m3uParser
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			p.feed(line)
		}
		if err == io.EOF {
			return p.channels, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// m3uParser carries at most one pending #EXTINF record between lines.
type m3uParser struct {
	pending  *extinf
	headers  *models.ChannelHeaders
	channels []models.Channel
}

type extinf struct {
	name    string
	tvgID   *string
	tvgName *string
	logo    *string
	group   *string
}

func (p *m3uParser) feed(line string) {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
	case strings.HasPrefix(trimmed, extinfTag):
		// A second #EXTINF before any URL replaces the first.
		p.pending = parseExtinf(trimmed)
		p.headers = nil
	case strings.HasPrefix(trimmed, vlcOptTag):
		p.vlcOpt(trimmed)
	case strings.HasPrefix(trimmed, "#"):
	default:
		p.url(trimmed)
	}
}

func (p *m3uParser) url(u string) {
	if p.pending == nil {
		return
	}
	e := p.pending
	id := u
	if e.tvgID != nil {
		id = *e.tvgID
	}
	name := e.name
	if name == "" {
		switch {
		case e.tvgName != nil:
			name = *e.tvgName
		case e.tvgID != nil:
			name = *e.tvgID
		default:
			name = u
		}
	}
	ch := models.Channel{
		ID:           id,
		Name:         name,
		URL:          u,
		LogoURL:      e.logo,
		Group:        e.group,
		TvgID:        e.tvgID,
		TvgName:      e.tvgName,
		EpgChannelID: e.tvgID,
	}
	if !p.headers.Empty() {
		ch.Headers = p.headers
	}
	p.channels = append(p.channels, ch)
	p.pending = nil
	p.headers = nil
}

func (p *m3uParser) vlcOpt(line string) {
	if p.headers == nil {
		p.headers = &models.ChannelHeaders{}
	}
	if s := matchFirstPtr(reHTTPOrigin, line); s != nil {
		p.headers.HTTPOrigin = s
	}
	if s := matchFirstPtr(reHTTPReferrer, line); s != nil {
		p.headers.Referrer = s
	}
	if s := matchFirstPtr(reHTTPUserAgent, line); s != nil {
		p.headers.UserAgent = s
	}
}

func parseExtinf(line string) *extinf {
	e := &extinf{
		tvgID:   matchFirstPtr(reTvgID, line),
		tvgName: matchFirstPtr(reTvgName, line),
		logo:    matchFirstPtr(reTvgLogo, line),
		group:   matchFirstPtr(reGroup, line),
	}
	if i := strings.LastIndex(line, ","); i >= 0 {
		e.name = strings.TrimSpace(line[i+1:])
	}
	return e
}

func matchFirst(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func matchFirstPtr(re *regexp.Regexp, s string) *string {
	v := matchFirst(re, s)
	if v == "" {
		return nil
	}
	return &v
}
