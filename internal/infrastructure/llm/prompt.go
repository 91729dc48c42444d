package llm

import (
	"fmt"
	"strings"

	"ProtagonismAnalyzer/internal/ports"
)

const defaultSystemPrompt = "Você é um analista especializado em classificar o nível de protagonismo de marcas em notícias. " +
	"Use os critérios fornecidos de forma rigorosa mas inclusiva: qualquer menção da marca deve ser pelo menos Nível 3 (Citação). " +
	"Considere verificações específicas quando informadas."

const levelGuide = `NÍVEIS DE PROTAGONISMO:

Nível 1 - Dedicada:
- A marca é o foco principal da matéria
- Destacada no título, subtítulo ou lead

Nível 2 - Conteúdo:
- Menção significativa da marca, sem ser o foco principal
- Comparação equilibrada com concorrentes, com o mesmo peso

Nível 3 - Citação:
- Marca secundária em matéria focada em concorrente
- Marca ou porta-vozes citados como referência setorial, por declarações ou dados
- Menção tangencial, onde a presença da marca não é crucial`

func systemPrompt(custom string) string {
	if s := strings.TrimSpace(custom); s != "" {
		return s
	}
	return defaultSystemPrompt
}

// userPrompt asks for exactly one of the four answers ParseLabel understands.
func userPrompt(req ports.ClassifyRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analise o seguinte texto de notícia e determine o nível de protagonismo da marca %q.\n\n", req.Brand)
	b.WriteString(levelGuide)
	fmt.Fprintf(&b, "\n\nREGRA IMPORTANTE: Se a marca %q for mencionada de QUALQUER FORMA no texto, classifique no MÍNIMO como \"Nível 3\".\n", req.Brand)
	if len(req.Hints) > 0 {
		fmt.Fprintf(&b, "VERIFICAÇÃO ESPECÍFICA: Os seguintes termos específicos foram encontrados: %s. "+
			"Classifique no mínimo como Citação.\n", strings.Join(req.Hints, ", "))
	}
	fmt.Fprintf(&b, "APENAS responda \"Nenhum Nível Encontrado\" se a marca %q NÃO aparecer de forma alguma no texto.\n\n", req.Brand)
	b.WriteString("Responda SOMENTE com: \"Nível 1\", \"Nível 2\", \"Nível 3\" ou \"Nenhum Nível Encontrado\".\n\n")
	b.WriteString("Texto da Notícia:\n")
	b.WriteString(req.ArticleText)
	return b.String()
}
