package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(`{"table":"reviews","kind":"insert","id":12}`))
	require.NoError(t, err)
	require.Equal(t, ChangeEvent{Table: TableReviews, Kind: KindInsert, ID: 12}, ev)

	data, err := Encode(ev)
	require.NoError(t, err)
	require.JSONEq(t, `{"table":"reviews","kind":"insert","id":12}`, string(data))
}

func TestDecodeRejects(t *testing.T) {
	for _, raw := range []string{``, `not json`, `{"table":"reviews"}`, `{"id":"7"}`} {
		_, err := Decode([]byte(raw))
		require.Error(t, err, raw)
	}
}

func TestConsumerName(t *testing.T) {
	require.Equal(t, "cdc-reviews-consumer", consumerName("cdc.reviews"))
}
