// Package slack implements transport.Adapter for Slack.
//
// Outbound messages use chat.postMessage with coloured attachments. Inbound
// slash commands and button clicks arrive over HTTP and are verified with
// the app's signing secret before being turned into transport updates.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	rtsup "duebot/internal/runtime/supervisor"
	"duebot/internal/transport"
	logx "duebot/pkg/logx"
)

type Config struct {
	BotToken        string
	SigningSecret   string
	ListenAddr      string
	CommandPath     string
	InteractionPath string
	APIURL          string // tests only
}

// Client is the subset of *slack.Client the adapter uses.
type Client interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
}

type Adapter struct {
	cfg    Config
	log    logx.Logger
	client Client

	mu      sync.Mutex
	out     chan<- transport.Update
	srv     *http.Server
	sup     *rtsup.Supervisor
	running bool
}

var _ transport.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("slack bot token is empty")
	}
	if strings.TrimSpace(cfg.SigningSecret) == "" {
		return nil, errors.New("slack signing secret is empty")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":3000"
	}
	if cfg.CommandPath == "" {
		cfg.CommandPath = "/slack/commands"
	}
	if cfg.InteractionPath == "" {
		cfg.InteractionPath = "/slack/interactions"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &Adapter{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "slack")),
		client: slack.New(cfg.BotToken, opts...),
	}, nil
}

func (a *Adapter) Name() string { return "slack" }

// Handler serves slash commands and interactions.
func (a *Adapter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(a.cfg.CommandPath, a.handleCommand)
	mux.HandleFunc(a.cfg.InteractionPath, a.handleInteraction)
	return mux
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}

	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("slack: listen %s: %w", a.cfg.ListenAddr, err)
	}
	a.out = out
	a.srv = &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))
	a.running = true

	srv := a.srv
	a.sup.Go("http.serve", func(context.Context) error {
		a.log.Info("listening for slash commands", logx.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	a.sup.Go0("http.shutdown_on_cancel", func(c context.Context) {
		<-c.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup = nil
	a.srv = nil
	a.out = nil
	a.running = false
	a.mu.Unlock()

	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

func (a *Adapter) emit(up transport.Update) bool {
	a.mu.Lock()
	out := a.out
	a.mu.Unlock()
	if out == nil {
		return false
	}
	select {
	case out <- up:
		return true
	default:
		a.log.Warn("incoming update dropped (channel full)")
		return false
	}
}

// verify checks the Slack signature and restores the body for form parsing.
func (a *Adapter) verify(r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	v, err := slack.NewSecretsVerifier(r.Header, a.cfg.SigningSecret)
	if err != nil {
		return err
	}
	if _, err := v.Write(body); err != nil {
		return err
	}
	return v.Ensure()
}

func (a *Adapter) handleCommand(w http.ResponseWriter, r *http.Request) {
	if err := a.verify(r); err != nil {
		a.log.Warn("rejected slash command", logx.Err(err))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	s, err := slack.SlashCommandParse(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	text := s.Command
	if args := strings.TrimSpace(s.Text); args != "" {
		text += " " + args
	}
	ok := a.emit(transport.Update{
		Kind: transport.UpdateCommand,
		Message: &transport.Message{
			ID:       s.TriggerID,
			Chat:     transport.ChatTarget{ChatID: s.ChannelID},
			FromID:   s.UserID,
			FromName: s.UserName,
			Text:     text,
		},
	})
	if !ok {
		writeJSON(w, &slack.Msg{ResponseType: slack.ResponseTypeEphemeral, Text: "The bot is busy, please try again."})
		return
	}
	// Ack now; the reply is posted separately.
	w.WriteHeader(http.StatusOK)
}

func (a *Adapter) handleInteraction(w http.ResponseWriter, r *http.Request) {
	if err := a.verify(r); err != nil {
		a.log.Warn("rejected interaction", logx.Err(err))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(r.FormValue("payload")), &cb); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if cb.Type == slack.InteractionTypeBlockActions {
		for _, act := range cb.ActionCallback.BlockActions {
			if act == nil || act.Value == "" {
				continue
			}
			a.emit(transport.Update{
				Kind: transport.UpdateCallback,
				Callback: &transport.Callback{
					ID:        cb.TriggerID,
					Chat:      transport.ChatTarget{ChatID: cb.Channel.ID},
					FromID:    cb.User.ID,
					MessageID: cb.Container.MessageTs,
					Data:      act.Value,
				},
			})
		}
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if opt.DisablePreview {
		opts = append(opts, slack.MsgOptionDisableLinkUnfurl())
	}
	if len(opt.Buttons) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(buttonBlocks(text, opt.Buttons)...))
	}
	return a.post(ctx, to, opt, opts...)
}

func (a *Adapter) SendCard(ctx context.Context, to transport.ChatTarget, card transport.Card, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	text := strings.TrimSpace(mentionText(card.Mention) + " " + escape(card.Content))
	return a.post(ctx, to, opt,
		slack.MsgOptionText(text, false),
		slack.MsgOptionAttachments(Attachment(card)),
		slack.MsgOptionDisableLinkUnfurl(),
	)
}

func (a *Adapter) post(ctx context.Context, to transport.ChatTarget, opt *transport.SendOptions, opts ...slack.MsgOption) (transport.MessageRef, error) {
	if strings.TrimSpace(to.ChatID) == "" {
		return transport.MessageRef{}, errors.New("slack: empty channel id")
	}
	if opt.Ephemeral && opt.UserID != "" {
		ts, err := a.client.PostEphemeralContext(ctx, to.ChatID, opt.UserID, opts...)
		if err != nil {
			return transport.MessageRef{}, err
		}
		return transport.MessageRef{Chat: to, MessageID: ts}, nil
	}
	ch, ts, err := a.client.PostMessageContext(ctx, to.ChatID, opts...)
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{Chat: transport.ChatTarget{ChatID: ch}, MessageID: ts}, nil
}

// AnswerCallback is a no-op: Slack button clicks are acknowledged by the
// HTTP response.
func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return ctx.Err()
}

// Attachment renders a card as a legacy message attachment.
func Attachment(c transport.Card) slack.Attachment {
	att := slack.Attachment{
		Color:    fmt.Sprintf("#%06X", c.Color&0xFFFFFF),
		Title:    c.Title,
		Text:     escape(c.Description),
		Footer:   c.Footer,
		Fallback: c.Title,
	}
	if !c.Timestamp.IsZero() {
		att.Ts = json.Number(strconv.FormatInt(c.Timestamp.Unix(), 10))
	}
	for _, f := range c.Fields {
		v := escape(f.Value)
		if f.URL != "" {
			v = "<" + f.URL + "|" + v + ">"
		}
		att.Fields = append(att.Fields, slack.AttachmentField{Title: f.Name, Value: v, Short: f.Inline})
	}
	return att
}

func mentionText(m *transport.Mention) string {
	if m.Empty() {
		return ""
	}
	var parts []string
	if m.RoleID != "" {
		parts = append(parts, "<!subteam^"+m.RoleID+">")
	}
	for _, id := range m.UserIDs {
		parts = append(parts, "<@"+id+">")
	}
	return strings.Join(parts, " ")
}

func buttonBlocks(text string, rows [][]transport.Button) []slack.Block {
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
	}
	n := 0
	for _, row := range rows {
		els := make([]slack.BlockElement, 0, len(row))
		for _, b := range row {
			label := b.Text
			if r := []rune(label); len(r) > 75 {
				label = string(r[:74]) + "…"
			}
			els = append(els, slack.NewButtonBlockElement(
				"btn-"+strconv.Itoa(n), b.Data,
				slack.NewTextBlockObject(slack.PlainTextType, label, false, false),
			))
			n++
		}
		if len(els) > 0 {
			blocks = append(blocks, slack.NewActionBlock("", els...))
		}
	}
	return blocks
}

// escape applies Slack's mrkdwn control-character escaping.
func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
