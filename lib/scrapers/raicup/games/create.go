package games

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aropan/raic-cli/lib/scrapers/raicup/core"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Participant is a concrete game slot: a username plus the 1-based
// strategy version to play with.
type Participant struct {
	Username string
	Strategy int
}

func (p Participant) String() string {
	return fmt.Sprintf("%s#%d", p.Username, p.Strategy)
}

// CreateGameError carries the validation messages the service rendered
// into the creation form. The scheduler inspects them for quota
// announcements.
type CreateGameError struct {
	Messages []string
}

func (e *CreateGameError) Error() string {
	return fmt.Sprintf("create game rejected: %s", strings.Join(e.Messages, "; "))
}

// Create submits one game. The strategy version goes over the wire
// zero-indexed.
func (c Client) Create(ctx context.Context, participants []Participant, format string) error {
	ctx, span := tracer.Start(ctx, "client:Create")
	defer span.End()

	versus := make([]string, len(participants))
	form := map[string]string{
		"action":     "createGame",
		"gameFormat": format,
	}
	for i, p := range participants {
		form[fmt.Sprintf("participant%d", i+1)] = p.Username
		form[fmt.Sprintf("participant%dStrategy", i+1)] = strconv.Itoa(p.Strategy - 1)
		versus[i] = p.String()
	}
	span.SetAttributes(
		attribute.String("format", format),
		attribute.String("versus", strings.Join(versus, " vs ")),
	)

	doc, err := c.Core.PostFormDoc(ctx, "/game/create", form)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit game creation")
		return err
	}
	if errs := core.PageErrors(doc); len(errs) > 0 {
		err := &CreateGameError{Messages: errs}
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
