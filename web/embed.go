package web

import "embed"

// TemplatesFS embeds the page and partial templates of the expense screen.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds the stylesheet and the small script that wires
// notifications, counters and the live refresh socket.
//
//go:embed static/*
var StaticFS embed.FS
