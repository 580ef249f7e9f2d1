package event

import (
	"testing"

	"booksrare_go/internal/domain"
)

func TestMatchCommandPool(t *testing.T) {
	cmd := AcquireMatchCommand()
	if cmd.ReplyTo == nil {
		t.Fatal("pooled command must carry a reply channel")
	}
	cmd.Type = TypeMatchAskWithTakerBid
	cmd.Maker = &domain.MakerOrder{Nonce: 7}
	cmd.SetSeq(3)

	cmd.ReplyTo <- Result{Seq: 3}
	<-cmd.ReplyTo
	ReleaseMatchCommand(cmd)

	if cmd.Maker != nil || cmd.GetSeq() != 0 || cmd.Type != 0 {
		t.Errorf("released command not reset: %+v", cmd)
	}
	if cmd.ReplyTo == nil {
		t.Error("reply channel must survive release")
	}
}

func TestReleaseMatchCommand_UnreadReply(t *testing.T) {
	cmd := AcquireMatchCommand()
	cmd.Maker = &domain.MakerOrder{Nonce: 1}
	cmd.ReplyTo <- Result{}
	ReleaseMatchCommand(cmd)

	if cmd.Maker == nil {
		t.Error("command with unread reply must not be reset")
	}
	ReleaseMatchCommand(nil)
}

func TestCommandTypes(t *testing.T) {
	tests := []struct {
		cmd  Command
		want Type
	}{
		{&MatchCommand{Type: TypeMatchBidWithTakerAsk}, TypeMatchBidWithTakerAsk},
		{&CancelAllCommand{}, TypeCancelAllBelow},
		{&CancelNoncesCommand{}, TypeCancelNonces},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			if got := tt.cmd.GetType(); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
	if Type(99).String() != "UNKNOWN" {
		t.Error("unexpected name for unknown type")
	}
}

func BenchmarkMatchCommandPool(b *testing.B) {
	Warmup()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		cmd := AcquireMatchCommand()
		cmd.Type = TypeMatchAskWithTakerBid
		ReleaseMatchCommand(cmd)
	}
}
