package event

import (
	"sync"
)

// matchPool recycles MatchCommands together with their reply channel.
// Settlement traffic is the hot path of the Sequencer.
//
// Usage:
//
//	cmd := AcquireMatchCommand()
//	cmd.Caller, cmd.Taker, cmd.Maker = caller, taker, maker
//	inbox <- cmd
//	res := <-cmd.ReplyTo
//	ReleaseMatchCommand(cmd)
var matchPool = sync.Pool{
	New: func() interface{} {
		return &MatchCommand{BaseCommand: BaseCommand{ReplyTo: make(chan Result, 1)}}
	},
}

// AcquireMatchCommand gets a MatchCommand from the pool.
// The returned command has zero values except for its reply channel.
func AcquireMatchCommand() *MatchCommand {
	return matchPool.Get().(*MatchCommand)
}

// ReleaseMatchCommand returns a MatchCommand to the pool.
// Its reply must have been consumed.
func ReleaseMatchCommand(cmd *MatchCommand) {
	if cmd == nil {
		return
	}
	reply := cmd.ReplyTo
	if reply == nil || len(reply) > 0 {
		// Unread result: drop the command rather than leak it to the next user.
		return
	}
	*cmd = MatchCommand{BaseCommand: BaseCommand{ReplyTo: reply}}
	matchPool.Put(cmd)
}

// Warmup pre-allocates commands to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 256

	cmds := make([]*MatchCommand, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		cmds = append(cmds, AcquireMatchCommand())
	}
	for _, cmd := range cmds {
		ReleaseMatchCommand(cmd)
	}
}
