package orbitsketch

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	sketcherrors "github.com/tamirms/orbitsketch/errors"
)

const fourLineMotifs = `P ENSG00000164164:ENSG00000175376 0 11:12 12:12 ENSG00000114125:ENSG00000135916
P ENSG00000006194:ENSG00000174851 0 6:6 12:12 ENSG00000114125:ENSG00000135916
P ENSG00000205302:ENSG00000175895 1 11:12 12:12 ENSG00000114125:ENSG00000135916
P ENSG00000147041:ENSG00000205302 0 6:6 12:12 ENSG00000114125:ENSG00000135916
`

func TestParserMotif(t *testing.T) {
	want := []Motif{
		{Raw: "ENSG00000164164:ENSG00000175376:11:12", UPrefix: "ENSG", U: 164164, VPrefix: "ENSG", V: 175376, O: 11, P: 12},
		{Raw: "ENSG00000006194:ENSG00000174851:6:6", UPrefix: "ENSG", U: 6194, VPrefix: "ENSG", V: 174851, O: 6, P: 6},
		{Raw: "ENSG00000205302:ENSG00000175895:11:12", UPrefix: "ENSG", U: 205302, VPrefix: "ENSG", V: 175895, O: 11, P: 12},
		{Raw: "ENSG00000147041:ENSG00000205302:6:6", UPrefix: "ENSG", U: 147041, VPrefix: "ENSG", V: 205302, O: 6, P: 6},
	}

	p := NewParser(strings.NewReader(fourLineMotifs))
	for i, w := range want {
		got, err := p.Motif()
		if err != nil {
			t.Fatalf("line %d: %v", i+1, err)
		}
		if got != w {
			t.Errorf("line %d:\n got %+v\nwant %+v", i+1, got, w)
		}
	}
	if _, err := p.Motif(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after last line, got %v", err)
	}
	// EOF is sticky.
	if _, err := p.Motif(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF on repeated call, got %v", err)
	}
}

func TestParserObservation(t *testing.T) {
	want := []Observation{
		{NodePair: "ENSG00000164164:ENSG00000175376", Connected: 0, OrbitPair: "11:12"},
		{NodePair: "ENSG00000006194:ENSG00000174851", Connected: 0, OrbitPair: "6:6"},
		{NodePair: "ENSG00000205302:ENSG00000175895", Connected: 1, OrbitPair: "11:12"},
		{NodePair: "ENSG00000147041:ENSG00000205302", Connected: 0, OrbitPair: "6:6"},
	}
	p := NewParser(strings.NewReader(fourLineMotifs))
	for i, w := range want {
		got, err := p.Observation()
		if err != nil {
			t.Fatalf("line %d: %v", i+1, err)
		}
		if got != w {
			t.Errorf("line %d: got %+v, want %+v", i+1, got, w)
		}
	}
	if _, err := p.Observation(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestParserRaw(t *testing.T) {
	want := []string{
		"ENSG00000164164:ENSG00000175376:11:12",
		"ENSG00000006194:ENSG00000174851:6:6",
		"ENSG00000205302:ENSG00000175895:11:12",
		"ENSG00000147041:ENSG00000205302:6:6",
	}
	p := NewParser(bufio.NewReader(strings.NewReader(fourLineMotifs)))
	for i, w := range want {
		got, err := p.Raw()
		if err != nil {
			t.Fatalf("line %d: %v", i+1, err)
		}
		if got != w {
			t.Errorf("line %d: got %q, want %q", i+1, got, w)
		}
	}
}

func TestParserLayout(t *testing.T) {
	// Blank lines, tabs, CRLF, no trailing newline, only the required tokens.
	input := "\n   \nP\tA1:B2  1\t3:4\r\n\nQ C10:D20 0 0:0"
	p := NewParser(strings.NewReader(input))

	obs, err := p.Observation()
	if err != nil {
		t.Fatal(err)
	}
	if obs != (Observation{NodePair: "A1:B2", Connected: 1, OrbitPair: "3:4"}) {
		t.Errorf("first = %+v", obs)
	}
	if p.Line() != 3 {
		t.Errorf("Line() = %d, want 3", p.Line())
	}

	m, err := p.Motif()
	if err != nil {
		t.Fatal(err)
	}
	if m.UPrefix != "C" || m.U != 10 || m.VPrefix != "D" || m.V != 20 || m.O != 0 || m.P != 0 || m.Raw != "C10:D20:0:0" {
		t.Errorf("second = %+v", m)
	}
	if _, err := p.Motif(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestParserLongLine(t *testing.T) {
	long := "P " + strings.Repeat("X", 3*readBufferSize) + "1:Y2 0 1:2\n"
	p := NewParser(strings.NewReader(long))
	m, err := p.Motif()
	if err != nil {
		t.Fatal(err)
	}
	if len(m.UPrefix) != 3*readBufferSize || m.U != 1 {
		t.Errorf("prefix length %d, id %d", len(m.UPrefix), m.U)
	}
}

func TestParserMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"missing node pair", "P\n"},
		{"node pair without colon", "P badtoken\n"},
		{"node pair with two colons", "P A1:B2:C3 0 1:2\n"},
		{"node without digits", "P ABC:B2 0 1:2\n"},
		{"second node without digits", "P A1:B 0 1:2\n"},
		{"node id with trailing letters", "P A1x:B2 0 1:2\n"},
		{"node id overflow", "P A99999999999999999999999:B2 0 1:2\n"},
		{"missing connectivity", "P A1:B2\n"},
		{"connectivity not a bit", "P A1:B2 2 1:2\n"},
		{"connectivity word", "P A1:B2 true 1:2\n"},
		{"missing orbit pair", "P A1:B2 0\n"},
		{"orbit pair without colon", "P A1:B2 0 12\n"},
		{"orbit pair with two colons", "P A1:B2 0 1:2:3\n"},
		{"negative orbit", "P A1:B2 0 -1:2\n"},
		{"empty orbit", "P A1:B2 0 1:\n"},
		{"orbit overflow", "P A1:B2 0 1:4294967296\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, method := range []string{"motif", "observation"} {
				p := NewParser(strings.NewReader("P A1:B2 0 1:2\n" + tt.line))
				if _, err := p.Observation(); err != nil {
					t.Fatalf("valid first line: %v", err)
				}
				var err error
				if method == "motif" {
					_, err = p.Motif()
				} else {
					_, err = p.Observation()
				}
				if !errors.Is(err, sketcherrors.ErrMalformedInput) {
					t.Fatalf("%s: expected ErrMalformedInput, got %v", method, err)
				}
				var se *sketcherrors.Error
				if !errors.As(err, &se) || se.Line != 2 {
					t.Errorf("%s: expected error at line 2, got %v", method, err)
				}
			}
		})
	}
}

func TestParserReadError(t *testing.T) {
	boom := errors.New("disk on fire")
	r := io.MultiReader(strings.NewReader("P A1:B2 0 1:2\n"), iotest.ErrReader(boom))
	p := NewParser(r)
	if _, err := p.Observation(); err != nil {
		t.Fatal(err)
	}
	_, err := p.Observation()
	if !errors.Is(err, sketcherrors.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
	if k, ok := sketcherrors.KindOf(err); !ok || k != sketcherrors.IOError {
		t.Errorf("KindOf = %v, %v", k, ok)
	}
}

func TestLenientParser(t *testing.T) {
	input := "P A1:B2 0 1:2\nP badtoken\nP A1:B2 7 1:2\nP C3:D4 1 5:6\n"
	var skipped []error
	lp := Lenient(NewParser(strings.NewReader(input)), func(err error) {
		skipped = append(skipped, err)
	})

	var got []Observation
	for {
		obs, err := lp.Observation()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, obs)
	}
	if len(got) != 2 || got[1].NodePair != "C3:D4" {
		t.Errorf("observations = %+v", got)
	}
	if lp.Skipped() != 2 || len(skipped) != 2 {
		t.Errorf("Skipped() = %d, callback saw %d", lp.Skipped(), len(skipped))
	}
	for _, err := range skipped {
		if !errors.Is(err, sketcherrors.ErrMalformedInput) {
			t.Errorf("skipped non-malformed error %v", err)
		}
	}
}

func TestLenientParserStopsOnReadError(t *testing.T) {
	boom := errors.New("boom")
	lp := Lenient(NewParser(io.MultiReader(strings.NewReader("P bad\n"), iotest.ErrReader(boom))), nil)
	if _, err := lp.Motif(); !errors.Is(err, sketcherrors.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if lp.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", lp.Skipped())
	}
}
