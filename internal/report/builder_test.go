package report

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ProtagonismAnalyzer/internal/classification"
	"ProtagonismAnalyzer/internal/consolidate"
	"ProtagonismAnalyzer/internal/domain"
	"ProtagonismAnalyzer/internal/ports"
	"ProtagonismAnalyzer/internal/protagonism"
)

type fixedService map[string]domain.Label

func (f fixedService) Classify(_ context.Context, req ports.ClassifyRequest) (domain.Label, error) {
	return f[req.Brand], nil
}

func TestBuildEndToEnd(t *testing.T) {
	t.Parallel()

	brands := []domain.Brand{{Name: "Itaú"}, {Name: "Bradesco"}, {Name: "Santander"}}
	names := domain.BrandNames(brands)
	service := fixedService{"Itaú": domain.LabelDedicated, "Bradesco": domain.LabelContent, "Santander": domain.LabelCitation}

	var articles []domain.Article
	for i := 1; i <= 3; i++ {
		articles = append(articles, domain.Article{
			ID:          fmt.Sprint(i),
			ViewURL:     fmt.Sprintf("https://view.example/%d", i),
			OriginalURL: fmt.Sprintf("https://news.example/%d", i),
			Title:       fmt.Sprintf("Bancos %d", i),
			Body:        "Resultados trimestrais.",
		})
	}

	policy := classification.DefaultPolicy()
	policy.RequestsPerSecond = 0
	client := classification.NewClient(service, policy, nil, nil)
	outcome, err := protagonism.NewClassifier(client, brands, protagonism.Options{FanOut: 4, FailureThreshold: 0.5}, nil, nil).
		Run(context.Background(), articles, nil)
	require.NoError(t, err)

	consolidated := consolidate.New(names, nil).Consolidate(articles, outcome.Results)

	b := NewBuilder(names, "")
	stamp := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	b.now = func() time.Time { return stamp }
	rep := b.Build("run-1", consolidated.Records)

	require.Len(t, rep.Rows, 3)
	for i, row := range rep.Rows {
		assert.Equal(t, fmt.Sprint(i+1), row.ID)
		assert.Equal(t, []string{"Dedicada", "Conteúdo", "Citação"}, row.Levels)
		require.NotNil(t, row.ViewLink)
		assert.Equal(t, row.ViewURL, row.ViewLink.URL)
		assert.Equal(t, "Link", row.ViewLink.Text)
		assert.Equal(t, stamp, row.Timestamp)
	}
	assert.Equal(t, "20250304_050607", rep.Suffix)
	assert.Equal(t, "Tabela_atualizacao_em_lote_limpo_20250304_050607.xlsx", rep.Files.Plain)
	assert.Equal(t, "Tabela_atualizacao_em_lote_limpo_hyperlinks_20250304_050607.xlsx", rep.Files.Hyperlinks)
}

func TestBuildBlanksUnusableLabels(t *testing.T) {
	t.Parallel()

	b := NewBuilder([]string{"Itaú", "Bradesco", "Santander"}, "Abrir")
	rec := domain.ConsolidatedRecord{
		Article: domain.Article{ID: "5", ViewURL: "ftp://files.example/5", OriginalURL: "https://news.example/5", Title: "T"},
		Slots: []domain.BrandSlot{
			{Brand: "Itaú", Label: domain.LabelFailed},
			{Brand: "Bradesco", Label: domain.LabelCitation, Occurrences: 2},
			{Brand: "Santander", Label: domain.LabelNotEvaluated},
		},
	}

	rep := b.Build("run-2", []domain.ConsolidatedRecord{rec})
	require.Len(t, rep.Rows, 1)
	row := rep.Rows[0]

	assert.Equal(t, []string{"", "Citação", ""}, row.Levels)
	assert.Nil(t, row.Occurrences[0])
	require.NotNil(t, row.Occurrences[1])
	assert.Equal(t, 2, *row.Occurrences[1])
	assert.Nil(t, row.ViewLink, "non-http URLs stay plain")
}

func TestHeader(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"Id", "UrlVisualizacao", "UrlOriginal", "Titulo",
		"Nivel de Protagonismo Itaú", "Ocorrencias Itaú",
		"Nivel de Protagonismo Bradesco", "Ocorrencias Bradesco",
	}, Header([]string{"Itaú", "Bradesco"}))
}
