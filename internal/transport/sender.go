package transport

import (
	"github.com/MarLuar/Mirror/internal/pcm"
	"github.com/MarLuar/Mirror/internal/protocol"
)

// BlockSender streams capture blocks over a channel as raw little-endian
// PCM datagrams, one datagram per block. It reuses a single scratch buffer,
// so it is not safe for concurrent use.
type BlockSender struct {
	channel *Channel
	scratch []byte
}

// NewBlockSender creates a sender sized for blocks of at most maxSamples
// samples.
func NewBlockSender(channel *Channel, maxSamples int) *BlockSender {
	return &BlockSender{
		channel: channel,
		scratch: make([]byte, maxSamples*2),
	}
}

// SendBlock encodes and transmits one block of samples.
func (s *BlockSender) SendBlock(samples []int16) error {
	n, err := pcm.SamplesToBytes(samples, s.scratch)
	if err != nil {
		return err
	}
	return s.channel.Send(s.scratch[:n])
}

// SendControl transmits one control token.
func (s *BlockSender) SendControl(ctrl protocol.Control) error {
	return s.channel.Send(ctrl.Encode())
}
