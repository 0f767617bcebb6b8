package proxy

import (
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCA_ProducesSelfSignedCACert(t *testing.T) {
	c, err := newCA()
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(c.certDER())
	require.NoError(t, err)
	assert.True(t, cert.IsCA)
	assert.Equal(t, "sfm-go recording proxy CA", cert.Subject.CommonName)
}

func TestLeafFor_IssuesCertSignedByCA(t *testing.T) {
	c, err := newCA()
	require.NoError(t, err)

	leaf, err := c.leafFor("example.com")
	require.NoError(t, err)
	require.Len(t, leaf.Certificate, 2)

	leafCert, err := x509.ParseCertificate(leaf.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, leafCert.DNSNames)

	roots := x509.NewCertPool()
	roots.AddCert(c.cert)
	_, err = leafCert.Verify(x509.VerifyOptions{DNSName: "example.com", Roots: roots})
	assert.NoError(t, err)
}

func TestLeafFor_CachesByHost(t *testing.T) {
	c, err := newCA()
	require.NoError(t, err)

	first, err := c.leafFor("example.com")
	require.NoError(t, err)
	second, err := c.leafFor("example.com")
	require.NoError(t, err)

	assert.Same(t, first, second)
}
