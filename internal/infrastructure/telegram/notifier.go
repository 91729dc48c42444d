package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"ProtagonismAnalyzer/internal/domain"
	"ProtagonismAnalyzer/internal/ports"
)

const defaultAPIURL = "https://api.telegram.org"

// Notifier sends run summaries to a Telegram chat via bot API.
type Notifier struct {
	apiURL   string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier. An empty apiURL means
// the public Bot API.
func NewNotifier(apiURL, botToken, chatID string) *Notifier {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Notifier{
		apiURL:   strings.TrimRight(apiURL, "/"),
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// PublishSummary posts a plain-text run summary.
func (n *Notifier) PublishSummary(ctx context.Context, summary domain.RunSummary) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", FormatSummary(summary))
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of logs.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("telegram error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return nil
}

// FormatSummary renders the message body.
func FormatSummary(s domain.RunSummary) string {
	var b strings.Builder
	status := "concluída"
	switch {
	case s.Aborted:
		status = "abortada (" + string(s.AbortReason) + ")"
	case s.PartiallyFailed:
		status = "concluída com falhas parciais"
	}
	fmt.Fprintf(&b, "Protagonismo: execução %s\n", status)
	fmt.Fprintf(&b, "Run: %s\n", s.RunID)
	if !s.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Início: %s", s.StartedAt.Format(time.DateTime))
		if !s.FinishedAt.IsZero() {
			fmt.Fprintf(&b, " (%s)", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Artigos coletados: %d (duplicados mesclados: %d)\n", s.ArticlesFetched, s.DuplicatesMerged)
	if len(s.EndpointsFailed) > 0 {
		fmt.Fprintf(&b, "Endpoints com falha: %s\n", strings.Join(s.EndpointsFailed, ", "))
	}
	fmt.Fprintf(&b, "Pares: %d total, %d enviados, %d resolvidos localmente, %d corrigidos, %d falhas, %d não enviados\n",
		s.PairsTotal, s.PairsDispatched, s.PairsAutoResolved, s.PairsCorrected, s.PairsFailed, s.PairsUndispatched)
	basis := "pares enviados"
	if s.FailureBasis == domain.BasisTotal {
		basis = "todos os pares"
	}
	fmt.Fprintf(&b, "Taxa de falha: %.1f%% (sobre %s)\n", s.FailureRate()*100, basis)

	if total := s.RejectedTotal(); total > 0 {
		reasons := make([]string, 0, len(s.Rejected))
		for reason, n := range s.Rejected {
			reasons = append(reasons, fmt.Sprintf("%s=%d", reason, n))
		}
		sort.Strings(reasons)
		fmt.Fprintf(&b, "Rejeitados: %d (%s)\n", total, strings.Join(reasons, ", "))
	}
	fmt.Fprintf(&b, "Registros gravados: %d\n", s.RecordsWritten)
	for _, f := range s.Files {
		fmt.Fprintf(&b, "Arquivo: %s\n", f)
	}
	return strings.TrimRight(b.String(), "\n")
}
