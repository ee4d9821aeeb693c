package geoip

import (
	"errors"
	"net"
	"testing"

	"github.com/oschwald/geoip2-golang"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	codes map[string]string
	calls int
	err   error
}

func (f *fakeReader) Country(ip net.IP) (*geoip2.Country, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rec := &geoip2.Country{}
	rec.Country.IsoCode = f.codes[ip.String()]
	return rec, nil
}

func (f *fakeReader) Close() error { return nil }

func TestResolverCountryCachesLookups(t *testing.T) {
	reader := &fakeReader{codes: map[string]string{"81.2.69.142": "gb"}}
	r := newResolver(reader)

	for i := 0; i < 3; i++ {
		code, err := r.Country("81.2.69.142")
		require.NoError(t, err)
		require.Equal(t, "GB", code)
	}
	require.Equal(t, 1, reader.calls)
}

func TestResolverSkipsPrivateAddresses(t *testing.T) {
	reader := &fakeReader{}
	r := newResolver(reader)

	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.5", "::1"} {
		code, err := r.Country(ip)
		require.NoError(t, err)
		require.Empty(t, code, ip)
	}
	require.Zero(t, reader.calls)
}

func TestResolverErrors(t *testing.T) {
	r := newResolver(&fakeReader{err: errors.New("corrupt")})
	_, err := r.Country("not-an-ip")
	require.Error(t, err)
	_, err = r.Country("8.8.8.8")
	require.ErrorContains(t, err, "corrupt")
}

func TestNilResolver(t *testing.T) {
	r, err := Open("")
	require.NoError(t, err)
	require.Nil(t, r)

	code, err := r.Country("8.8.8.8")
	require.NoError(t, err)
	require.Empty(t, code)
	require.NoError(t, r.Close())
}
