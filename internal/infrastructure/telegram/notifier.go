package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"FeedCrawler/internal/domain"
	"FeedCrawler/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier announces retrieved articles to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// NotifyArticleRetrieved posts a one-line announcement of article.
func (n *Notifier) NotifyArticleRetrieved(ctx context.Context, article domain.Article) error {
	return n.send(ctx, FormatArticle(article))
}

// FormatArticle renders the announcement text.
func FormatArticle(article domain.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New %s article: %s\n%s", article.Language, article.Title, article.URL)

	titles := make([]string, 0, len(article.NewTopics))
	for _, t := range article.NewTopics {
		titles = append(titles, fmt.Sprintf("%s (%s)", t.Topic.Title, t.Origin))
	}
	if len(titles) > 0 {
		b.WriteString("\nTopics: ")
		b.WriteString(strings.Join(titles, ", "))
	}
	return b.String()
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}
