package protocol_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ramses-rf/ramses-rf/internal/protocol"
)

func TestCommand_ExpectsReplyTrueWhenRxHeaderSet(t *testing.T) {
	t.Parallel()

	cmd := protocol.NewCommand(time.Now(), "2309|RQ|01:078710", "2309|RP|01:078710", "18:000730", "01:078710", "2309", protocol.VerbRequest, nil)

	require.True(t, cmd.ExpectsReply())
}

func TestCommand_ExpectsReplyFalseWhenRxHeaderEmpty(t *testing.T) {
	t.Parallel()

	cmd := protocol.NewCommand(time.Now(), "0008| I|01:078710", "", "01:078710", "63:262142", "0008", protocol.VerbInform, nil)

	require.False(t, cmd.ExpectsReply())
}

func TestCommand_PayloadReturnsACopy(t *testing.T) {
	t.Parallel()

	cmd := protocol.NewCommand(time.Now(), "2309|RQ|01:078710", "2309|RP|01:078710", "18:000730", "01:078710", "2309", protocol.VerbRequest, []byte{0x01, 0x02})

	got := cmd.Payload()
	got[0] = 0xFF

	require.Equal(t, []byte{0x01, 0x02}, cmd.Payload(), "mutating the returned slice must not affect the Command")
}
