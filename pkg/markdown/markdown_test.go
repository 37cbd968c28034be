package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	out, err := Render("Kitchen sink **leaking**\n\n- under cabinet\n- since Monday")
	require.NoError(t, err)
	assert.Contains(t, out, "<strong>leaking</strong>")
	assert.Contains(t, out, "<li>under cabinet</li>")
}

func TestRenderDropsRawHTML(t *testing.T) {
	out := MustRender("hello <script>alert(1)</script>")
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "hello")
}

func TestRenderEmpty(t *testing.T) {
	out, err := Render("")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRenderHardWraps(t *testing.T) {
	assert.Contains(t, MustRender("line one\nline two"), "<br>")
}
