package autosense

// GenerateLandingPage returns a minimal page with a scan form and an index
// of the API routes.
func GenerateLandingPage() string {

	text := `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>autosense</title>` +
		`<style> html, body{font-family: "Fixedsys,Courier,monospace";}body {max-width: 960px; min-width: 320px;` +
		`margin: 0 auto;}section {margin: 3em 1.5em 0 1.5em;}section:last-of-type {margin-bottom: 3em;}` +
		`li {margin-top: 0.8em;}.nes-container {position: relative; padding: 1.5rem 2rem; border-color: #000; border-style: solid;` +
		`border-width: 4px;} .nes-container.with-title > .title {display: table;padding: 0 .5rem;margin: -2.2rem 0 1rem; font-size:` +
		`1rem;background-color: #fff;}` +
		`.nes-btn {border-style: solid;border-width: 4px;text-decoration: none;background-color: #92cc41;` +
		`display: inline-block;padding: 6px 8px;color: #fff;}` +
		`</style></head><body>` +
		`<section class="nes-container with-title"><h2 class="title">autosense ></h2>` +
		`<div><a class="nes-btn is-success" href="/health">RUNNING</a></div>` +
		`<p>Photograph a number plate, pick the registration, follow the sale.</p></section>` +
		`<section class="nes-container with-title"><h2 class="title">scan</h2>` +
		`<form action="/scan" method="post" enctype="multipart/form-data">` +
		`<input type="file" name="image" accept="image/*" capture="environment"> ` +
		`<input type="text" name="session" placeholder="session id (optional)"> ` +
		`<button class="nes-btn" type="submit">Scan</button></form></section>` +
		`<section class="nes-container with-title"><h2 class="title">api</h2><ul>` +
		`<li>POST /sessions, GET /sessions/{id}, POST /sessions/{id}/reset, DELETE /sessions/{id}</li>` +
		`<li>POST /scan (multipart image or json img_base64)</li>` +
		`<li>POST /registration {session, candidate, manual, condition}</li>` +
		`<li>POST /journeys, GET /journeys/{id}, POST /journeys/{id}/advance</li>` +
		`<li>POST /journeys/{id}/sale, GET /journeys/{id}/sale</li>` +
		`<li>GET /snapshot/{registration}?condition=good, GET /insurance/{registration}</li>` +
		`<li>GET /backends, GET /metrics</li>` +
		`</ul></section></body></html>`
	return text

}
