// ABOUTME: The dangeru command: an anonymous per-workspace board with daily tripcodes
// ABOUTME: Its buttons and modal are public, so any member can page or post

package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/2389/stingray-gateway/internal/command"
	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/store"
)

const (
	boardPageSize  = 5
	boardMinLength = 2
	boardMaxLength = 500
	boardInputID   = "dangeru_msg"
)

// Board is the anonymous board.
type Board struct {
	posts store.BoardStore
	salt  string
	now   func() time.Time
}

// NewBoard creates the dangeru command.
func NewBoard(posts store.BoardStore, salt string) *Board {
	return &Board{posts: posts, salt: salt, now: time.Now}
}

func (b *Board) Spec() command.Spec {
	return command.Spec{
		Name:        "dangeru",
		Description: "Anonymous board.",
		Options: []command.OptionSpec{
			{Name: "board", Description: "Read the board", Type: interaction.OptionSubcommand},
			{Name: "post", Description: "Post anonymously", Type: interaction.OptionSubcommand, Options: []command.OptionSpec{
				{Name: "message", Description: "What to say", Type: interaction.OptionString, Required: true},
			}},
		},
	}
}

func (b *Board) Families() []command.Family {
	return []command.Family{{Name: "dangeru", Ownership: command.Public}}
}

// Tripcode is the poster's pseudonym for the day. It changes at UTC midnight.
func (b *Board) Tripcode(userID string) string {
	day := b.now().UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(userID + "-" + day + "-" + b.salt))
	return "!" + strings.ToUpper(hex.EncodeToString(sum[:])[:6])
}

func (b *Board) Execute(ctx context.Context, req *command.Request) error {
	sub, opts := req.Event.Subcommand()
	if sub == "post" {
		if ok, err := b.post(ctx, req, interaction.StringOption(opts, "message")); !ok || err != nil {
			return err
		}
	}
	msg, err := b.view(ctx, req.Event.WorkspaceID, 1)
	if err != nil {
		return err
	}
	msg.Replace = false
	return req.Reply(ctx, msg)
}

func (b *Board) HandleComponent(ctx context.Context, req *command.Request) error {
	action := req.Key.Action()
	switch {
	case action == "open":
		return req.Respond.OpenModal(ctx, interaction.Modal{
			CustomID: interaction.ActionKey("dangeru", "submit"),
			Title:    "Anonymous Post",
			Components: []interaction.ActionRow{interaction.Row(
				interaction.TextInput(boardInputID, "Message", interaction.TextInputParagraph, true, boardMaxLength),
			)},
		})
	case action == "submit":
		if ok, err := b.post(ctx, req, req.Event.Fields[boardInputID]); !ok || err != nil {
			return err
		}
		msg, err := b.view(ctx, req.Event.WorkspaceID, 1)
		if err != nil {
			return err
		}
		return req.Update(ctx, msg)
	case strings.HasPrefix(action, "page_"):
		page, err := strconv.Atoi(strings.TrimPrefix(action, "page_"))
		if err != nil {
			page = 1
		}
		msg, err := b.view(ctx, req.Event.WorkspaceID, page)
		if err != nil {
			return err
		}
		return req.Update(ctx, msg)
	}
	return nil
}

// post stores content and reports whether it was accepted. A rejected
// post has already been answered.
func (b *Board) post(ctx context.Context, req *command.Request, content string) (bool, error) {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n < boardMinLength || n > boardMaxLength {
		return false, req.Reply(ctx, interaction.Ephemeral(fmt.Sprintf("❌ Posts must be %d to %d characters.", boardMinLength, boardMaxLength)))
	}
	p := &store.BoardPost{
		WorkspaceID: req.Event.WorkspaceID,
		Tripcode:    b.Tripcode(req.UserID()),
		Content:     content,
		CreatedAt:   b.now().UTC(),
	}
	if err := b.posts.CreateBoardPost(ctx, p); err != nil {
		return false, fmt.Errorf("saving post: %w", err)
	}
	req.Logger.Info("board post created", "workspace_id", p.WorkspaceID, "post_id", p.ID)
	return true, nil
}

func (b *Board) view(ctx context.Context, workspaceID string, page int) (interaction.Message, error) {
	total, err := b.posts.CountBoardPosts(ctx, workspaceID)
	if err != nil {
		return interaction.Message{}, fmt.Errorf("counting posts: %w", err)
	}
	pages := max((total+boardPageSize-1)/boardPageSize, 1)
	page = min(max(page, 1), pages)

	posts, err := b.posts.ListBoardPosts(ctx, workspaceID, boardPageSize, (page-1)*boardPageSize)
	if err != nil {
		return interaction.Message{}, fmt.Errorf("listing posts: %w", err)
	}

	embed := interaction.Embed{
		Title:  "dangeru",
		Color:  colorNeutral,
		Footer: &interaction.EmbedFooter{Text: fmt.Sprintf("Page %d of %d • Total: %d", page, pages, total)},
	}
	if len(posts) == 0 {
		embed.Description = "The board is empty. Say something."
	}
	for _, p := range posts {
		embed.Fields = append(embed.Fields, interaction.EmbedField{
			Name:  fmt.Sprintf("`%s` • No.%d • %s", p.Tripcode, p.ID, p.CreatedAt.UTC().Format("2006-01-02 15:04")),
			Value: p.Content,
		})
	}

	prev := interaction.Button(interaction.ButtonSecondary, "◀", interaction.ActionKey("dangeru", "page_"+strconv.Itoa(page-1)))
	prev.Disabled = page <= 1
	next := interaction.Button(interaction.ButtonSecondary, "▶", interaction.ActionKey("dangeru", "page_"+strconv.Itoa(page+1)))
	next.Disabled = page >= pages

	return interaction.Message{
		Replace: true,
		Embeds:  []interaction.Embed{embed},
		Components: []interaction.ActionRow{interaction.Row(
			prev,
			interaction.Button(interaction.ButtonPrimary, "Post", interaction.ActionKey("dangeru", "open")),
			next,
		)},
	}, nil
}
