// Package automation reacts to incoming group messages with chatbot
// commands and trigger rules.
package automation

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wagroups/wagroups/internal/store"
	"github.com/wagroups/wagroups/internal/uazapi"
)

// Replier sends a text back into a chat through an instance.
type Replier interface {
	Reply(ctx context.Context, inst *store.Instance, chatID, text string) error
}

// ErrInvalidExpression wraps CEL compile failures.
var ErrInvalidExpression = errors.New("invalid trigger expression")

// Engine evaluates commands and triggers. Compiled programs are cached by
// expression text.
type Engine struct {
	db    *store.DB
	reply Replier
	env   *cel.Env
	log   *zap.Logger

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewEngine builds the CEL environment. Expressions see text, sender, group
// (the group name) and from_me.
func NewEngine(db *store.DB, reply Replier, log *zap.Logger) (*Engine, error) {
	env, err := cel.NewEnv(
		ext.Strings(),
		cel.Variable("text", cel.StringType),
		cel.Variable("sender", cel.StringType),
		cel.Variable("group", cel.StringType),
		cel.Variable("from_me", cel.BoolType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "cel environment")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{db: db, reply: reply, env: env, log: log.Named("webhook"), programs: map[string]cel.Program{}}, nil
}

// KeywordExpression is the expression a plain keyword trigger compiles to:
// a case-insensitive substring match.
func KeywordExpression(keyword string) string {
	return "text.lowerAscii().contains(" + strconv.Quote(strings.ToLower(strings.TrimSpace(keyword))) + ")"
}

// Compile checks that expr is a valid boolean expression and caches it.
func (e *Engine) Compile(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}
	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrap(ErrInvalidExpression, iss.Err().Error())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Wrapf(ErrInvalidExpression, "expression must be boolean, got %s", ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidExpression, err.Error())
	}
	e.mu.Lock()
	e.programs[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// Match evaluates expr against a message.
func (e *Engine) Match(expr string, ev *uazapi.Event, groupName string) (bool, error) {
	prg, err := e.Compile(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"text":    ev.Text,
		"sender":  ev.Sender,
		"group":   groupName,
		"from_me": ev.FromMe,
	})
	if err != nil {
		return false, errors.Wrap(err, "evaluate trigger")
	}
	b, ok := out.Value().(bool)
	return ok && b, nil
}

// HandleMessage reacts to one incoming message on inst. A "/keyword" message
// is answered by the matching command; otherwise the first enabled trigger
// whose expression matches replies. Own messages and direct chats are ignored.
func (e *Engine) HandleMessage(ctx context.Context, inst *store.Instance, ev *uazapi.Event) error {
	if ev.FromMe || !ev.IsGroup || ev.Text == "" {
		return nil
	}
	g, err := e.db.GetGroupByJID(ctx, inst.ID, ev.ChatID)
	if errors.Is(err, store.ErrNotFound) {
		e.log.Debug("message from unsynced group", zap.String("instance_id", inst.ID), zap.String("chat_id", ev.ChatID))
		return nil
	}
	if err != nil {
		return err
	}

	if strings.HasPrefix(ev.Text, "/") {
		keyword := strings.Fields(ev.Text)[0]
		cmd, err := e.db.FindCommand(ctx, g.OrganizationID, keyword)
		switch {
		case err == nil:
			e.log.Info("command", zap.String("group_id", g.ID), zap.String("keyword", cmd.Keyword))
			return e.reply.Reply(ctx, inst, g.JID, cmd.Response)
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
	}

	triggers, err := e.db.ListActiveTriggers(ctx, g)
	if err != nil {
		return err
	}
	for _, t := range triggers {
		ok, err := e.Match(t.Expression, ev, g.Name)
		if err != nil {
			e.log.Warn("trigger evaluation failed", zap.String("trigger_id", t.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		e.log.Info("trigger fired", zap.String("trigger_id", t.ID), zap.String("group_id", g.ID))
		if err := e.reply.Reply(ctx, inst, g.JID, t.Response); err != nil {
			return errors.Wrapf(err, "trigger %s reply", t.ID)
		}
		return e.db.RecordTriggerFired(ctx, t.ID)
	}
	return nil
}
