package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
)

const plainEML = "From: NPTEL <noreply@nptel.ac.in>\r\n" +
	"To: student@example.edu\r\n" +
	"Subject: =?UTF-8?Q?Exam_registration_open?=\r\n" +
	"Date: Mon, 01 Jul 2024 10:00:00 +0530\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"The exam registration is open till Friday.\r\n"

const multipartEML = "From: tpo@example.edu\r\n" +
	"Subject: Campus drive\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"XYZ\"\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><body><p>Ignored html</p></body></html>\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"Placement drive for final year stu=\r\n" +
	"dents.\r\n" +
	"--XYZ--\r\n"

const htmlEML = "Subject: Newsletter\r\n" +
	"Content-Type: text/html\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"PGRpdj5XZWVrbHkgZXZlbnRzPC9kaXY+PHNjcmlwdD54PC9zY3JpcHQ+\r\n"

func writeFiles(t *testing.T, fsys afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
	}
}

func TestParseEMLPlain(t *testing.T) {
	s, err := ParseEML(strings.NewReader(plainEML))
	require.NoError(t, err)

	assert.Equal(t, "Exam registration open", s.Subject)
	assert.Equal(t, "NPTEL <noreply@nptel.ac.in>", s.From)
	assert.Equal(t, "student@example.edu", s.To)
	assert.Equal(t, "Mon, 01 Jul 2024 10:00:00 +0530", s.Date)
	assert.Contains(t, s.Body, "The exam registration is open till Friday.")
}

func TestParseEMLPrefersPlainPart(t *testing.T) {
	s, err := ParseEML(strings.NewReader(multipartEML))
	require.NoError(t, err)

	assert.Equal(t, "Campus drive", s.Subject)
	assert.Contains(t, s.Body, "Placement drive for final year students.")
	assert.NotContains(t, s.Body, "Ignored")
}

func TestParseEMLStripsHTML(t *testing.T) {
	s, err := ParseEML(strings.NewReader(htmlEML))
	require.NoError(t, err)

	assert.Equal(t, "Weekly events", s.Body)
}

func TestParseFileFormats(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		data      string
		want      []RawSample
		malformed int
		wantErr   bool
	}{
		{
			name: "json object",
			path: "a.json",
			data: `{"subject":"Exam","body":"Hall ticket","category":"NPTEL"}`,
			want: []RawSample{{Subject: "Exam", Body: "Hall ticket", Category: "NPTEL"}},
		},
		{
			name: "json list",
			path: "a.JSON",
			data: `[{"body":"one"},{"body":"two"}]`,
			want: []RawSample{{Body: "one"}, {Body: "two"}},
		},
		{
			name:      "jsonl skips malformed",
			path:      "a.jsonl",
			data:      "{\"body\":\"one\"}\n{broken\n\n{\"body\":\"two\"}\n",
			want:      []RawSample{{Body: "one"}, {Body: "two"}},
			malformed: 1,
		},
		{
			name:      "jsonl all malformed",
			path:      "a.jsonl",
			data:      "{broken\n",
			malformed: 1,
			wantErr:   true,
		},
		{
			name: "yaml object",
			path: "a.yaml",
			data: "subject: Fest\nbody: Cultural fest this week\n",
			want: []RawSample{{Subject: "Fest", Body: "Cultural fest this week"}},
		},
		{
			name: "yaml list",
			path: "a.yml",
			data: "- body: one\n- body: two\n  category: HOD\n",
			want: []RawSample{{Body: "one"}, {Body: "two", Category: "HOD"}},
		},
		{
			name:    "empty yaml",
			path:    "a.yaml",
			data:    "",
			wantErr: true,
		},
		{
			name: "text",
			path: "a.txt",
			data: "just a body",
			want: []RawSample{{Body: "just a body"}},
		},
		{
			name:    "unsupported",
			path:    "a.pdf",
			data:    "%PDF",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, malformed, err := ParseFile(tt.path, []byte(tt.data))
			assert.Equal(t, tt.malformed, malformed)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDir(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{
		"/samples/NPTEL/1.eml":         plainEML,
		"/samples/Placement/drive.eml": multipartEML,
		"/samples/mixed.jsonl": `{"body":"Department meeting","category":"HOD"}` + "\n" +
			`{"body":"no label here"}` + "\n" +
			"not json\n",
		"/samples/loose.txt":        "Loose body",
		"/samples/NPTEL/empty.json": `{"from":"x@y.z"}`,
		"/samples/NPTEL/bad.yaml":   "body: [unterminated",
		"/samples/NPTEL/notes.pdf":  "%PDF",
		"/samples/.git/config.txt":  "hidden",
	})

	samples, stats, err := LoadDir(context.Background(), fsys, "/samples", LoadOptions{Concurrency: 2})
	require.NoError(t, err)

	var paths, cats []string
	for _, s := range samples {
		paths = append(paths, s.Path)
		cats = append(cats, s.Category)
	}
	assert.Equal(t, []string{"NPTEL/1.eml", "Placement/drive.eml", "mixed.jsonl"}, paths)
	assert.Equal(t, []string{"NPTEL", "Placement", "HOD"}, cats)

	assert.Equal(t, 7, stats.Files)
	assert.Equal(t, 1, stats.Ignored)
	assert.Equal(t, 3, stats.Loaded)
	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, 2, stats.Unlabeled, "loose.txt and the unlabeled jsonl line")
	assert.Equal(t, 5, stats.Skipped)
	assert.Positive(t, stats.Bytes)

	require.Len(t, stats.Failures, 2)
	for _, f := range stats.Failures {
		assert.True(t, errors.Is(f.Err, internalerr.ErrSampleUnreadable), f.Path)
	}
}

func TestLoadDirDefaultCategoryAndPattern(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{
		"/in/a.txt":       "root level body",
		"/in/NPTEL/b.txt": "nested body",
		"/in/NPTEL/c.eml": plainEML,
	})

	samples, stats, err := LoadDir(context.Background(), fsys, "/in", LoadOptions{
		Pattern:         "**/*.txt",
		DefaultCategory: "Other",
	})
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, "NPTEL/b.txt", samples[0].Path)
	assert.Equal(t, "NPTEL", samples[0].Category)
	assert.Equal(t, "a.txt", samples[1].Path)
	assert.Equal(t, "Other", samples[1].Category)
	assert.Equal(t, 2, stats.Files)
}

func TestLoadDirErrors(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{"/file.txt": "body"})

	_, _, err := LoadDir(context.Background(), fsys, "/missing", LoadOptions{})
	assert.Error(t, err)

	_, _, err = LoadDir(context.Background(), fsys, "/file.txt", LoadOptions{})
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))

	_, _, err = LoadDir(context.Background(), fsys, "/", LoadOptions{Pattern: "[unclosed"})
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
}

func TestLoadDirCancelled(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{"/s/NPTEL/a.txt": "body"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := LoadDir(ctx, fsys, "/s", LoadOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
