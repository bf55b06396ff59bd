package structure

import (
	"reflect"
	"testing"

	"github.com/jackzampolin/temario/internal/types"
)

func TestBuildCoverIndex(t *testing.T) {
	topics := []types.Topic{
		{Order: 3, Title: "Direito Penal", CoverRef: "late"},
		{Order: 1, Title: "  DIREITO  penal", CoverRef: "X"},
		{Order: 2, Title: "Contratos"},
		{Order: 4, Title: "Ação Civil Pública", CoverRef: "Y"},
	}

	got := BuildCoverIndex(topics)
	want := map[string]string{
		"direito penal":      "X",
		"acao civil publica": "Y",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildCoverIndex() = %v, want %v", got, want)
	}

	if topics[0].Order != 3 {
		t.Error("input slice was reordered")
	}
	if len(BuildCoverIndex(nil)) != 0 {
		t.Error("expected empty index for no topics")
	}
}

func TestResolveCover(t *testing.T) {
	index := map[string]string{"direito penal": "X"}

	tests := []struct {
		name     string
		title    string
		def      string
		wantRef  string
		wantFrom CoverSource
	}{
		{"match", "Direito Penal", "D", "X", CoverReused},
		{"match ignores case and accents", "DIREITO PENÁL", "", "X", CoverReused},
		{"default", "Contratos", "D", "D", CoverDefaulted},
		{"none", "Contratos", "", "", CoverMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, from := ResolveCover(index, tt.title, tt.def)
			if ref != tt.wantRef || from != tt.wantFrom {
				t.Errorf("ResolveCover(%q) = (%q, %v), want (%q, %v)", tt.title, ref, from, tt.wantRef, tt.wantFrom)
			}
		})
	}
}

func TestValidateRanges(t *testing.T) {
	th := func(title string, start, end int) types.Theme {
		return types.Theme{Title: title, PageStart: start, PageEnd: end}
	}

	tests := []struct {
		name     string
		in       []types.Theme
		total    int
		repair   bool
		want     []types.Theme
		repaired int
		wantErr  bool
	}{
		{"contiguous", []types.Theme{th("A", 1, 10), th("B", 11, 20)}, 20, false, []types.Theme{th("A", 1, 10), th("B", 11, 20)}, 0, false},
		{"gaps allowed", []types.Theme{th("A", 1, 5), th("B", 8, 9)}, 0, false, []types.Theme{th("A", 1, 5), th("B", 8, 9)}, 0, false},
		{"single page", []types.Theme{th("A", 4, 4)}, 4, false, []types.Theme{th("A", 4, 4)}, 0, false},
		{"unknown total", []types.Theme{th("A", 1, 500)}, 0, false, []types.Theme{th("A", 1, 500)}, 0, false},
		{"overlap repaired", []types.Theme{th("A", 1, 10), th("B", 8, 15)}, 0, true, []types.Theme{th("A", 1, 10), th("B", 11, 15)}, 1, false},
		{"overlap rejected", []types.Theme{th("A", 1, 10), th("B", 8, 15)}, 0, false, nil, 0, true},
		{"repair would empty range", []types.Theme{th("A", 1, 10), th("B", 5, 10)}, 0, true, nil, 0, true},
		{"out of order", []types.Theme{th("A", 10, 20), th("B", 1, 5)}, 0, true, nil, 0, true},
		{"start zero", []types.Theme{th("A", 0, 5)}, 0, false, nil, 0, true},
		{"end before start", []types.Theme{th("A", 6, 5)}, 0, false, nil, 0, true},
		{"past document end", []types.Theme{th("A", 1, 31)}, 30, false, nil, 0, true},
		{"blank title", []types.Theme{th(" ", 1, 2)}, 0, false, nil, 0, true},
		{"empty", nil, 0, false, nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, repaired, err := ValidateRanges(tt.in, tt.total, tt.repair)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ValidateRanges() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateRanges() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) || repaired != tt.repaired {
				t.Errorf("ValidateRanges() = %+v (%d repaired), want %+v (%d)", got, repaired, tt.want, tt.repaired)
			}
		})
	}
}
