package structure

import (
	"reflect"
	"testing"

	"github.com/jackzampolin/temario/internal/types"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Posse e Propriedade - Parte I", "Posse e Propriedade"},
		{"Posse e Propriedade - Parte II", "Posse e Propriedade"},
		{"Posse e Propriedade: parte 2", "Posse e Propriedade"},
		{"Direito Administrativo — Parte III", "Direito Administrativo"},
		{"Direito Civil Parte II", "Direito Civil"},
		{"Direito Penal, parte i", "Direito Penal"},
		{"Direito Penal II", "Direito Penal"},
		{"Direito Penal - I e II", "Direito Penal"},
		{"Direito Constitucional I and II", "Direito Constitucional"},
		{"Contratos 1/2", "Contratos"},
		{"Contratos 1, 2 & 3", "Contratos"},
		{"Capítulo VI", "Capítulo"},
		{"  Direito Tributário  ", "Direito Tributário"},

		// left alone
		{"Parte Geral", "Parte Geral"},
		{"Parte II", "Parte II"},
		{"Lei 8112", "Lei 8112"},
		{"Direito Civil", "Direito Civil"},
		{"Teoria Geral do Estado XL", "Teoria Geral do Estado XL"},
		{"Direito vi", "Direito vi"},
		{"Processo Civil e Penal", "Processo Civil e Penal"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeTitle(tt.in); got != tt.want {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []types.Theme
		want []types.Theme
	}{
		{
			name: "split parts merge",
			in: []types.Theme{
				{Order: 1, Title: "Posse e Propriedade - Parte I", PageStart: 10, PageEnd: 15},
				{Order: 2, Title: "Posse e Propriedade - Parte II", PageStart: 16, PageEnd: 20},
				{Order: 3, Title: "Contratos", PageStart: 21, PageEnd: 30},
			},
			want: []types.Theme{
				{Order: 1, Title: "Posse e Propriedade", PageStart: 10, PageEnd: 20},
				{Order: 2, Title: "Contratos", PageStart: 21, PageEnd: 30},
			},
		},
		{
			name: "only consecutive entries merge",
			in: []types.Theme{
				{Order: 1, Title: "Obrigações - Parte I", PageStart: 1, PageEnd: 5},
				{Order: 2, Title: "Contratos", PageStart: 6, PageEnd: 9},
				{Order: 3, Title: "Obrigações - Parte II", PageStart: 10, PageEnd: 12},
			},
			want: []types.Theme{
				{Order: 1, Title: "Obrigações", PageStart: 1, PageEnd: 5},
				{Order: 2, Title: "Contratos", PageStart: 6, PageEnd: 9},
				{Order: 3, Title: "Obrigações", PageStart: 10, PageEnd: 12},
			},
		},
		{
			name: "case and accents fold, first title kept",
			in: []types.Theme{
				{Order: 7, Title: "Ação Penal - Parte I", PageStart: 3, PageEnd: 4, Subtopics: []string{"denúncia"}},
				{Order: 9, Title: "ACAO PENAL - Parte II", PageStart: 5, PageEnd: 8, Subtopics: []string{"queixa", "denúncia"}},
			},
			want: []types.Theme{
				{Order: 1, Title: "Ação Penal", PageStart: 3, PageEnd: 8, Subtopics: []string{"denúncia", "queixa", "denúncia"}},
			},
		},
		{
			name: "emitted order wins over model order",
			in: []types.Theme{
				{Order: 2, Title: "Família", PageStart: 1, PageEnd: 2},
				{Order: 1, Title: "Sucessões", PageStart: 3, PageEnd: 4},
			},
			want: []types.Theme{
				{Order: 1, Title: "Família", PageStart: 1, PageEnd: 2},
				{Order: 2, Title: "Sucessões", PageStart: 3, PageEnd: 4},
			},
		},
		{
			name: "missing start ignored in min",
			in: []types.Theme{
				{Title: "Penal I", PageStart: 0, PageEnd: 4},
				{Title: "Penal II", PageStart: 5, PageEnd: 9},
			},
			want: []types.Theme{
				{Order: 1, Title: "Penal", PageStart: 5, PageEnd: 9},
			},
		},
		{
			name: "empty",
			in:   nil,
			want: []types.Theme{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize() =\n%+v\nwant\n%+v", got, tt.want)
			}
		})
	}
}

func TestNormalize_DoesNotModifyInput(t *testing.T) {
	in := []types.Theme{
		{Order: 1, Title: "Penal - Parte I", PageStart: 1, PageEnd: 2, Subtopics: []string{"a"}},
		{Order: 2, Title: "Penal - Parte II", PageStart: 3, PageEnd: 4, Subtopics: []string{"b"}},
	}
	Normalize(in)
	if in[0].Title != "Penal - Parte I" || len(in[0].Subtopics) != 1 {
		t.Errorf("input modified: %+v", in[0])
	}
}

func TestFoldTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Direito  PENAL ", "direito penal"},
		{"Ação", "acao"},
		{"Língua Portuguesa", "lingua portuguesa"},
		{"DIREITO\tCONSTITUCIONAL\n", "direito constitucional"},
		{"Sucessões", "sucessoes"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := FoldTitle(tt.in); got != tt.want {
				t.Errorf("FoldTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
