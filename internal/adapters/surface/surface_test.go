package surface

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/Meet/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestRenderAndRemove(t *testing.T) {
	c := NewConsole(context.Background())
	c.Render("a1", core.NewMediaSource("local", nil, nil), "Alice", true)
	c.Render("b1", core.NewRemoteStream("s-b1"), "Bob", false)
	assert.ElementsMatch(t, []string{"a1", "b1"}, ids(c))

	c.RemoveRender("b1")
	c.RemoveRender("b1")
	assert.ElementsMatch(t, []string{"a1"}, ids(c))
	c.Wait()
}

func TestRenderAgainReplacesTile(t *testing.T) {
	c := NewConsole(context.Background())
	c.Render("b1", core.NewRemoteStream("s1"), "Bob", false)
	c.Render("b1", core.NewRemoteStream("s2"), "Bobby", false)
	assert.Len(t, c.Rendered(), 1)
}

func TestNavigatorCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	NewNavigator(cancel).Redirect("https://meet.example/bye")
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	NewNavigator(nil).Redirect("/")
}

func TestAlerterLogs(t *testing.T) {
	assert.NotPanics(t, func() { Alerter{}.Alert(errors.New("camera busy")) })
}

func ids(c *Console) []string {
	var out []string
	for _, id := range c.Rendered() {
		out = append(out, string(id))
	}
	return out
}
