package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dummyHandler() Handler {
	return func(req, res interface{}) error { return nil }
}

func TestTrieExactAndParamMatch(t *testing.T) {
	trie := NewTrie()
	h := dummyHandler()
	require.True(t, trie.Insert("GET", "/users/:userId/posts/:postId", h, nil))

	m := NewRouteMatch(nil)
	ok := trie.Match("GET", "/users/42/posts/7", m)
	require.True(t, ok)

	params := m.Params()
	require.Len(t, params, 2)
	assert.Equal(t, "userId", params[0].Key)
	assert.Equal(t, "42", params[0].Value)
	assert.Equal(t, "postId", params[1].Key)
	assert.Equal(t, "7", params[1].Value)
}

func TestTrieWildcardIsTerminalOnly(t *testing.T) {
	trie := NewTrie()
	require.True(t, trie.Insert("GET", "/assets/*", dummyHandler(), nil))

	m := NewRouteMatch(nil)
	assert.True(t, trie.Match("GET", "/assets/js/app.js", m))
}

func TestTrieNoMatchForUnknownPath(t *testing.T) {
	trie := NewTrie()
	require.True(t, trie.Insert("GET", "/users/:id", dummyHandler(), nil))

	m := NewRouteMatch(nil)
	assert.False(t, trie.Match("GET", "/accounts/1", m))
}

func TestTrieWrongMethodIsNotFound(t *testing.T) {
	trie := NewTrie()
	require.True(t, trie.Insert("GET", "/users/:id", dummyHandler(), nil))

	m := NewRouteMatch(nil)
	assert.False(t, trie.Match("DELETE", "/users/1", m))
}

func TestTrieUnsupportedMethodRejectedAtInsert(t *testing.T) {
	trie := NewTrie()
	assert.False(t, trie.Insert("CONNECT", "/tunnel", dummyHandler(), nil))
}

func TestTrieInsertingNewRouteDoesNotAffectExistingMatches(t *testing.T) {
	trie := NewTrie()
	require.True(t, trie.Insert("GET", "/a/:id", dummyHandler(), nil))

	before := NewRouteMatch(nil)
	require.True(t, trie.Match("GET", "/a/1", before))

	require.True(t, trie.Insert("GET", "/a/:id/extra", dummyHandler(), nil))

	after := NewRouteMatch(nil)
	require.True(t, trie.Match("GET", "/a/1", after))
	assert.Equal(t, before.Params(), after.Params())
}

func TestTrieBacktrackRollsBackParamsOnFailedDescent(t *testing.T) {
	trie := NewTrie()
	require.True(t, trie.Insert("GET", "/a/:id/literal", dummyHandler(), nil))

	m := NewRouteMatch(nil)
	assert.False(t, trie.Match("GET", "/a/1/nope", m))
	assert.Empty(t, m.Params(), "failed backtracking must leave no captured params")
}

func TestTrieParamOverflowPromotesToDynamicArray(t *testing.T) {
	trie := NewTrie()
	pattern := "/:p0/:p1/:p2/:p3/:p4/:p5/:p6/:p7/:p8/:p9"
	require.True(t, trie.Insert("GET", pattern, dummyHandler(), nil))

	m := NewRouteMatch(nil)
	require.True(t, trie.Match("GET", "/0/1/2/3/4/5/6/7/8/9", m))
	assert.Len(t, m.Params(), 10)
}
