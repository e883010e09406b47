// Package speech turns answers into audio files served under /static.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aretw0/finchat/pkg/domain"
)

// DefaultEndpoint is the Google Translate text-to-speech endpoint.
const DefaultEndpoint = "https://translate.google.com/translate_tts"

// MaxChunk is the longest text the endpoint accepts per request, in characters.
const MaxChunk = 200

// GoogleTTS synthesizes mp3 audio through the Google Translate speech endpoint.
type GoogleTTS struct {
	endpoint string
	client   *http.Client
}

// TTSOption configures GoogleTTS.
type TTSOption func(*GoogleTTS)

// WithEndpoint overrides the speech endpoint.
func WithEndpoint(endpoint string) TTSOption {
	return func(g *GoogleTTS) {
		if endpoint != "" {
			g.endpoint = endpoint
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) TTSOption {
	return func(g *GoogleTTS) {
		if client != nil {
			g.client = client
		}
	}
}

// NewGoogleTTS creates a synthesizer.
func NewGoogleTTS(opts ...TTSOption) *GoogleTTS {
	g := &GoogleTTS{
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Synthesize returns the mp3 audio of text spoken in lang.
func (g *GoogleTTS) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	chunks := Chunk(text, MaxChunk)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("nothing to synthesize")
	}

	var audio bytes.Buffer
	for i, chunk := range chunks {
		if err := g.fetch(ctx, &audio, chunk, lang, i, len(chunks)); err != nil {
			return nil, domain.NewUpstreamError("speech", err)
		}
	}
	return audio.Bytes(), nil
}

func (g *GoogleTTS) fetch(ctx context.Context, w io.Writer, chunk, lang string, idx, total int) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("q", chunk)
	q.Set("tl", lang)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chunk %d: status %d", idx, resp.StatusCode)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// Chunk splits text into pieces of at most max characters, breaking on
// whitespace where possible. Words longer than max are cut.
func Chunk(text string, max int) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, word := range strings.Fields(text) {
		for utf8.RuneCountInString(word) > max {
			flush()
			runes := []rune(word)
			chunks = append(chunks, string(runes[:max]))
			word = string(runes[max:])
		}
		n := utf8.RuneCountInString(word)
		if curLen > 0 && curLen+1+n > max {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(word)
		curLen += n
	}
	flush()
	return chunks
}
