package httpapi

import (
	"fmt"
	"net/http"
)

var page = `<html>
	<head><title>picamd</title></head>
	<body>
		<div>
			<img id="stream" src="/stream" style="max-width: 48%%; height: auto;"/>
		</div>
		<div>
			<a href="/frame">frame</a>
			<a href="/frame_gray">frame_gray</a>
			<a href="/frame_compressed">frame_compressed</a>
			<a href="/status">status</a>
		</div>
%s	</body>
</html>
`

var motionPanel = `		<div>
			<img id="m" src="/motion/m" style="max-width: 24%; height: auto;"/>
			<img id="o" src="/motion/o" style="max-width: 24%; height: auto;"/>
			<img id="v" src="/motion/v" style="max-width: 24%; height: auto;"/>
			<img id="e" src="/motion/e" style="max-width: 24%; height: auto;"/>
		</div>
		<script>
			window.setInterval(function(){
				let t = new Date().getTime()
				document.getElementById('m').src = "/motion/m?t=" + t;
				document.getElementById('o').src = "/motion/o?t=" + t;
				document.getElementById('v').src = "/motion/v?t=" + t;
				document.getElementById('e').src = "/motion/e?t=" + t;
			}, 1000);
		</script>
`

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	panel := ""
	if s.opts.Motion != nil {
		panel = motionPanel
	}
	fmt.Fprintf(w, page, panel)
}
