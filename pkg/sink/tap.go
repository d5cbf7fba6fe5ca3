package sink

import (
	"github.com/haolipeng/gopacket"
	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/router"
)

// Tap 在发送前把帧记录到 PcapSink，记录失败不影响发送
type Tap struct {
	next router.Transmitter
	sink *PcapSink
}

func NewTap(next router.Transmitter, sink *PcapSink) *Tap {
	return &Tap{next: next, sink: sink}
}

func (t *Tap) Transmit(iface string, frame []byte) error {
	if err := t.sink.WriteFrame(gopacket.CaptureInfo{}, frame); err != nil {
		logrus.Debugf("tap: record frame on %s: %v", iface, err)
	}
	return t.next.Transmit(iface, frame)
}
