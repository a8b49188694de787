package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/librescoot/taptap-observer/pkg/gateway/link"
	"github.com/librescoot/taptap-observer/pkg/gateway/transport"
	"github.com/librescoot/taptap-observer/pkg/pv/application"
)

// peekBytes dumps the raw byte stream, either untouched (-raw) or as
// space-separated hex with a newline after every trailer (7E 08), so a
// terminal scrolls one frame at a time.
func peekBytes(s *sourceFlags, logger logrus.FieldLogger, raw bool) {
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	lastWas7E := false
	s.readLoop(logger, func(chunk []byte) {
		if raw {
			out.Write(chunk)
			out.Flush()
			return
		}
		for _, b := range chunk {
			sep := byte(' ')
			if lastWas7E && b == 0x08 {
				sep = '\n'
			}
			fmt.Fprintf(out, "%02X%c", b, sep)
			lastWas7E = b == 0x7e
		}
		out.Flush()
	})
}

type frameLoggingSink struct{}

func (frameLoggingSink) Frame(f link.Frame) {
	fmt.Printf("%+v\n", f)
}

func peekFrames(s *sourceFlags, logger logrus.FieldLogger) {
	rx := link.NewReceiver(frameLoggingSink{})
	s.readLoop(logger, rx.Extend)
}

func peekActivity(s *sourceFlags, logger logrus.FieldLogger) {
	sink := newActivityLoggingSink(logger)
	appReceiver := application.NewReceiver(sink, sink)
	rx := link.NewReceiver(transport.NewReceiver(appReceiver))
	s.readLoop(logger, rx.Extend)
}
