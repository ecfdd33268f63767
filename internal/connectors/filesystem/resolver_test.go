package filesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{name: "file uri", uri: "file:///srv/belgeler/izin.pdf", want: "/srv/belgeler/izin.pdf"},
		{name: "file uri with spaces", uri: "file:///srv/ortak belgeler/izin.pdf", want: "/srv/ortak belgeler/izin.pdf"},
		{name: "bare path", uri: "/srv/belgeler/", want: "/srv/belgeler"},
		{name: "relative path", uri: "./belgeler/../notlar", want: "notlar"},
		{name: "empty", uri: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePath(tt.uri))
		})
	}
}
