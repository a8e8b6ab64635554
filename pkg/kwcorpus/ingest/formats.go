package ingest

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/normalize"
)

// maxBodyBytes caps how much of a single message body is read.
const maxBodyBytes = 8 << 20

var supportedExts = map[string]bool{
	".eml":   true,
	".json":  true,
	".jsonl": true,
	".yaml":  true,
	".yml":   true,
	".txt":   true,
}

// Supported reports whether path has an extension the loader can parse.
func Supported(path string) bool {
	return supportedExts[strings.ToLower(filepath.Ext(path))]
}

// ParseFile decodes the samples held in data, choosing the format from the
// extension of path. The second result counts malformed JSONL lines that
// were skipped.
func ParseFile(path string, data []byte) ([]RawSample, int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".eml":
		s, err := ParseEML(bytes.NewReader(data))
		if err != nil {
			return nil, 0, err
		}
		return []RawSample{s}, 0, nil
	case ".json":
		samples, err := parseJSON(data)
		return samples, 0, err
	case ".jsonl":
		return parseJSONL(data)
	case ".yaml", ".yml":
		samples, err := parseYAML(data)
		return samples, 0, err
	case ".txt":
		return []RawSample{{Body: string(data)}}, 0, nil
	default:
		return nil, 0, fmt.Errorf("unsupported sample format %q", filepath.Ext(path))
	}
}

func parseJSON(data []byte) ([]RawSample, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var samples []RawSample
		if err := json.Unmarshal(trimmed, &samples); err != nil {
			return nil, fmt.Errorf("decode json list: %w", err)
		}
		return samples, nil
	}
	var s RawSample
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return []RawSample{s}, nil
}

func parseJSONL(data []byte) ([]RawSample, int, error) {
	var (
		samples   []RawSample
		malformed int
	)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), maxBodyBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var s RawSample
		if err := json.Unmarshal(line, &s); err != nil {
			malformed++
			continue
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return samples, malformed, fmt.Errorf("scan jsonl: %w", err)
	}
	if len(samples) == 0 {
		return nil, malformed, errors.New("no valid samples in jsonl")
	}
	return samples, malformed, nil
}

func parseYAML(data []byte) ([]RawSample, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("empty yaml document")
	}
	root := doc.Content[0]
	if root.Kind == yaml.SequenceNode {
		var samples []RawSample
		if err := root.Decode(&samples); err != nil {
			return nil, fmt.Errorf("decode yaml list: %w", err)
		}
		return samples, nil
	}
	var s RawSample
	if err := root.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return []RawSample{s}, nil
}

// ParseEML reads an RFC 5322 message. Encoded-word headers are decoded,
// the text/plain part is preferred over text/html, and HTML is reduced to
// its visible text.
func ParseEML(r io.Reader) (RawSample, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return RawSample{}, fmt.Errorf("read message: %w", err)
	}

	dec := new(mime.WordDecoder)
	header := func(key string) string {
		v := msg.Header.Get(key)
		if decoded, err := dec.DecodeHeader(v); err == nil {
			return decoded
		}
		return v
	}

	body, err := readBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return RawSample{}, err
	}

	return RawSample{
		Subject: header("Subject"),
		From:    header("From"),
		To:      header("To"),
		Date:    msg.Header.Get("Date"),
		Body:    body,
	}, nil
}

func readBody(contentType, encoding string, r io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return readMultipart(r, params["boundary"])
	}
	if !strings.HasPrefix(mediaType, "text/") {
		return "", nil
	}

	data, err := io.ReadAll(io.LimitReader(decodeTransfer(encoding, r), maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	text := string(data)
	if mediaType == "text/html" || normalize.LooksLikeHTML(text) {
		return normalize.StripHTML(text), nil
	}
	return text, nil
}

func readMultipart(r io.Reader, boundary string) (string, error) {
	if boundary == "" {
		return "", errors.New("multipart body without boundary")
	}
	mr := multipart.NewReader(r, boundary)
	var plain, html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read part: %w", err)
		}
		if disp, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition")); disp == "attachment" {
			continue
		}
		ct := part.Header.Get("Content-Type")
		text, err := readBody(ct, part.Header.Get("Content-Transfer-Encoding"), part)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		mediaType, _, _ := mime.ParseMediaType(ct)
		switch {
		case mediaType == "text/html":
			if html == "" {
				html = text
			}
		case plain == "":
			plain = text
		}
	}
	if plain != "" {
		return plain, nil
	}
	return html, nil
}

// multipart.Reader already decodes quoted-printable parts and drops the
// header, so this only sees encodings it has left in place.
func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	default:
		return r
	}
}
