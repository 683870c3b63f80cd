package publiclink

import (
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/signdesk/internal/errs"
)

func TestIssueAndParse_RoundTrip(t *testing.T) {
	t.Parallel()
	iss := NewIssuer([]byte("test-key"), time.Hour, "https://sign.example")

	docID := uuid.Must(uuid.NewV4())
	signerID := uuid.Must(uuid.NewV4())

	token, link, err := iss.Issue(docID, signerID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, "https://sign.example/sign/"))
	require.True(t, strings.HasSuffix(link, token))

	gotDoc, gotSigner, err := iss.Parse(token)
	require.NoError(t, err)
	require.Equal(t, docID, gotDoc)
	require.Equal(t, signerID, gotSigner)
}

func TestParse_WrongKey(t *testing.T) {
	t.Parallel()
	a := NewIssuer([]byte("key-a"), time.Hour, "https://sign.example")
	b := NewIssuer([]byte("key-b"), time.Hour, "https://sign.example")

	token, _, err := a.Issue(uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()))
	require.NoError(t, err)

	_, _, err = b.Parse(token)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestParse_Expired(t *testing.T) {
	t.Parallel()
	iss := NewIssuer([]byte("test-key"), -time.Minute, "https://sign.example")

	token, _, err := iss.Issue(uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()))
	require.NoError(t, err)

	_, _, err = iss.Parse(token)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestParse_Garbage(t *testing.T) {
	t.Parallel()
	iss := NewIssuer([]byte("test-key"), time.Hour, "https://sign.example")

	_, _, err := iss.Parse("not-a-token")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}
