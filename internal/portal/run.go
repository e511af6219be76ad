package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

var errLoginExhausted = errors.New("login attempts exhausted")

// Run executes the whole workflow for one user and always returns an
// Outcome. Errors are caught here, the session is discarded, and the
// failure is still recorded before returning.
func (c *Client) Run(ctx context.Context, userID int64) Outcome {
	runID := uuid.NewString()
	log := c.log.With("run_id", runID, "user_id", userID)

	runCtx, cancel := context.WithTimeout(ctx, c.opts.RunTimeout)
	defer cancel()

	out, err := c.execute(runCtx, runID, log)
	if err != nil {
		log.Error("run failed", "err", err)
		out = Outcome{Kind: KindFailure, Message: FailureText}
	}

	// Record with a fresh deadline: the run deadline may already be spent.
	recCtx, recCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer recCancel()
	if err := c.sink.RecordResult(recCtx, userID, out.Message); err != nil {
		log.Error("record result", "err", err)
	}
	return out
}

func (c *Client) execute(ctx context.Context, runID string, log *slog.Logger) (Outcome, error) {
	sess, err := c.newSession(runID, log)
	if err != nil {
		return Outcome{}, err
	}

	// Open + challenge are retried together once: a failed challenge
	// usually means the entry page itself loaded badly.
	if err := sess.openAndSolveChallenge(ctx); err != nil {
		log.Warn("challenge failed, reopening entry page", "err", err)
		if err := sess.openAndSolveChallenge(ctx); err != nil {
			return Outcome{}, fmt.Errorf("challenge: %w", err)
		}
	}

	if err := sess.login(ctx); err != nil {
		return Outcome{}, fmt.Errorf("login: %w", err)
	}

	status, err := sess.checkSlots(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("slot query: %w", err)
	}

	if sess.continueAvailable(ctx) {
		if err := sess.submitApplicant(ctx); err != nil {
			return Outcome{}, fmt.Errorf("submit applicant: %w", err)
		}
		return Outcome{Kind: KindSlot, Message: status}, nil
	}
	return Outcome{Kind: KindNoSlot, Message: status}, nil
}

// openAndSolveChallenge loads the entry page, snapshots it, and answers the
// anti-bot challenge embedded in its frame.
func (s *runSession) openAndSolveChallenge(ctx context.Context) error {
	s.log.Info("opening portal entry page")
	doc, body, err := s.getDoc(ctx, "/")
	if err != nil {
		return err
	}
	s.snapshot("entry", body)

	src, ok := doc.Find("iframe").First().Attr("src")
	if !ok {
		return errors.New("challenge frame not found")
	}

	s.log.Info("solving challenge", "frame", src)
	frame, _, err := s.getDoc(ctx, src)
	if err != nil {
		return fmt.Errorf("load challenge frame: %w", err)
	}
	token, ok := frame.Find("input[name=challenge-token]").First().Attr("value")
	if !ok || token == "" {
		return errors.New("challenge token not found")
	}
	if _, err := s.postForm(ctx, "/challenge/verify", map[string]string{"token": token}); err != nil {
		return fmt.Errorf("verify challenge: %w", err)
	}
	return nil
}

// login submits credentials, but only once the submit control reports
// enabled. Attempts are bounded; exhaustion fails the step.
func (s *runSession) login(ctx context.Context) error {
	s.log.Info("logging in")
	for attempt := 1; attempt <= s.c.opts.MaxRetries; attempt++ {
		doc, err := s.waitFor(ctx, s.c.opts.ElementWait, "/login", func(d *goquery.Document) bool {
			return d.Find("button.submit:not([disabled])").Length() > 0
		})
		if err != nil {
			s.log.Warn("sign-in control unavailable, retrying", "attempt", attempt, "err", err)
			continue
		}

		form := map[string]string{
			"email":    s.c.opts.Email,
			"password": s.c.opts.Password,
		}
		if csrf, ok := doc.Find("input[name=csrf]").First().Attr("value"); ok {
			form["csrf"] = csrf
		}

		res, err := s.postForm(ctx, "/login", form)
		if err != nil {
			s.log.Warn("login request failed, retrying", "attempt", attempt, "err", err)
			continue
		}
		if res.Find(`a[href="/logout"]`).Length() > 0 {
			s.log.Info("login succeeded")
			return nil
		}
		s.log.Warn("login not accepted, retrying", "attempt", attempt)
	}
	return errLoginExhausted
}

// checkSlots triggers the slot query and returns the portal's status text.
// A missing status element degrades to an error-description string; only a
// failed query trigger is an error.
func (s *runSession) checkSlots(ctx context.Context) (string, error) {
	s.log.Info("checking slot availability")

	// Consent banner: absence within the short wait is normal.
	if _, err := s.waitFor(ctx, s.c.opts.ConsentWait, "/appointment", func(d *goquery.Document) bool {
		return d.Find("#consent-accept").Length() > 0
	}); err != nil {
		s.log.Info("no consent banner, continuing")
	} else if _, err := s.postForm(ctx, "/consent", map[string]string{"accept": "all"}); err != nil {
		s.log.Warn("dismiss consent banner", "err", err)
	}

	if _, err := s.postForm(ctx, "/appointment/check", nil); err != nil {
		return "", fmt.Errorf("trigger availability check: %w", err)
	}

	// Best-effort category selection: individual failures are logged and
	// swallowed, the bound keeps the loop from spinning.
	for attempt := 1; attempt <= s.c.opts.MaxRetries; attempt++ {
		if err := s.selectFirstCategory(ctx); err != nil {
			s.log.Warn("select category", "attempt", attempt, "err", err)
		}
	}

	doc, err := s.waitFor(ctx, s.c.opts.ElementWait, "/appointment/check", func(d *goquery.Document) bool {
		return d.Find("div.alert.alert-info").Length() > 0
	})
	if err != nil {
		msg := fmt.Sprintf("status unavailable: %v", err)
		s.log.Error("read status text", "err", err)
		return msg, nil
	}
	status := strings.TrimSpace(doc.Find("div.alert.alert-info").First().Text())
	s.log.Info("portal status", "text", status)
	return status, nil
}

func (s *runSession) selectFirstCategory(ctx context.Context) error {
	doc, _, err := s.getDoc(ctx, "/appointment/check")
	if err != nil {
		return err
	}
	opt := doc.Find("select[name=category] option").First()
	value, ok := opt.Attr("value")
	if !ok {
		return errors.New("no category options")
	}
	_, err = s.postForm(ctx, "/appointment/category", map[string]string{"category": value})
	return err
}

// continueAvailable probes the continuation control. Conservative: any
// failure or timeout reads as "no slot", never as an error.
func (s *runSession) continueAvailable(ctx context.Context) bool {
	doc, err := s.waitFor(ctx, s.c.opts.ElementWait, "/appointment/check", func(d *goquery.Document) bool {
		return d.Find("button.continue").Length() > 0
	})
	if err != nil {
		s.log.Info("continue control not found", "err", err)
		return false
	}
	enabled := doc.Find("button.continue:not([disabled])").Length() > 0
	s.log.Info("continue control", "enabled", enabled)
	return enabled
}

// submitApplicant fills the applicant form with the account identity and
// fixed demographic defaults. No local retry: failures propagate to the
// run's failure handler.
func (s *runSession) submitApplicant(ctx context.Context) error {
	s.log.Info("submitting applicant form")
	_, err := s.postForm(ctx, "/appointment/applicant", map[string]string{
		"reference":   s.c.opts.Email,
		"email":       s.c.opts.Email,
		"gender":      "Female",
		"nationality": "Turkiye",
	})
	return err
}
