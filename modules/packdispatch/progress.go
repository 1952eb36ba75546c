// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package packdispatch

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// termWidth reports out's terminal width, defaulting to 80 when out
// isn't a terminal or the ioctl fails — the same fallback
// pkg/zeta/transfer.go uses for its download bars.
func termWidth(out *os.File) int {
	w, _, err := term.GetSize(int(out.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	if w > 80 {
		return 80
	}
	return w
}

// wrapProgress returns a reader that proxies r, reporting bytes read
// through an mpb bar on dst when dst is a terminal, and a stop
// function to call once the ingester has finished consuming it. When
// dst isn't a terminal (redirected to a file, a pipe, /dev/null) it
// returns r unchanged and a no-op stop, matching git's own behavior of
// suppressing progress bars for non-interactive output.
func wrapProgress(r io.Reader, dst io.Writer) (io.Reader, func()) {
	f, ok := dst.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return r, func() {}
	}

	width := termWidth(f)
	p := mpb.New(mpb.WithOutput(f), mpb.WithAutoRefresh(), mpb.WithWidth(width))
	bar := p.New(-1,
		mpb.BarStyle().Filler("#").Padding(" "),
		mpb.PrependDecorators(decor.Name("receiving pack")),
		mpb.BarWidth(width),
		mpb.AppendDecorators(
			decor.CurrentKibiByte("% .1f", decor.WCSyncWidth),
			decor.EwmaSpeed(decor.SizeB1024(0), " % .2f", 90),
		),
	)
	proxied := bar.ProxyReader(r)
	return proxied, func() {
		bar.SetTotal(-1, true)
		p.Wait()
	}
}
