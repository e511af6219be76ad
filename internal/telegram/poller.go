package telegram

import (
	"context"
	"log/slog"
	"time"
)

// Handler receives dispatched updates.
type Handler interface {
	HandleMessage(ctx context.Context, msg *Message)
	HandleCallback(ctx context.Context, cb *CallbackQuery)
}

// Poller long-polls getUpdates and dispatches each update on its own
// goroutine, so a slow handler (an automation run takes minutes) never
// stalls the update stream.
type Poller struct {
	Client      *Client
	Handler     Handler
	PollTimeout time.Duration
	Log         *slog.Logger
}

func (p *Poller) Run(ctx context.Context) error {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	timeout := p.PollTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := p.Client.GetUpdates(ctx, offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("get updates", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			u := u
			go p.dispatch(ctx, u)
		}
	}
}

func (p *Poller) dispatch(ctx context.Context, u Update) {
	switch {
	case u.Message != nil:
		p.Handler.HandleMessage(ctx, u.Message)
	case u.CallbackQuery != nil:
		p.Handler.HandleCallback(ctx, u.CallbackQuery)
	}
}
