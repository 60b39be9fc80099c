package relay

import "sort"

// Presets returns fresh copies of the built-in backend definitions. Only
// credentials, and for ftp/s3 the host and public URL, need to be filled in.
func Presets() map[string]BackendConfig {
	return map[string]BackendConfig{
		"imgbb": {
			Name:          "imgbb",
			Kind:          KindHTTPForm,
			Endpoint:      "https://api.imgbb.com/1/upload",
			Auth:          AuthForm,
			AuthParam:     "key",
			FileField:     "image",
			FilenameField: "name",
			Response: ResponseSpec{
				URLPath:      "data.url",
				MIMEPath:     "data.image.mime",
				StatusPath:   "success",
				SuccessValue: "true",
				ErrorPath:    "error.message",
			},
		},
		"postimages": {
			Name:          "postimages",
			Kind:          KindHTTPForm,
			Endpoint:      "https://api.postimage.org/1/upload",
			Auth:          AuthForm,
			AuthParam:     "key",
			FileField:     "image",
			FilenameField: "name",
			Response: ResponseSpec{
				URLPath:      "image.url",
				StatusPath:   "status",
				SuccessValue: "success",
				ErrorPath:    "error",
			},
		},
		"hostimages": {
			Name:          "hostimages",
			Kind:          KindHTTPMultipart,
			Auth:          AuthForm,
			AuthParam:     "key",
			FileField:     "image",
			FilenameField: "name",
			Response: ResponseSpec{
				URLPath:      "data.url",
				StatusPath:   "status",
				SuccessValue: "success",
				ErrorPath:    "error.message",
			},
		},
		"cdn": {
			Name:          "cdn",
			Kind:          KindHTTPJSON,
			Endpoint:      "https://cdn.example.com/api/upload",
			Auth:          AuthBearer,
			FileField:     "file",
			FilenameField: "filename",
			Response: ResponseSpec{
				URLPath:      "url",
				MIMEPath:     "mime",
				StatusPath:   "status",
				SuccessValue: "success",
				ErrorPath:    "message",
			},
		},
		"ftp": {
			Name:         "ftp",
			Kind:         KindFTP,
			Port:         DefaultFTPPort,
			PathTemplate: DefaultPathTemplate,
		},
		"s3": {
			Name:         "s3",
			Kind:         KindS3,
			UseTLS:       true,
			PathTemplate: DefaultPathTemplate,
		},
	}
}

// PresetNames lists the built-in backends in a stable order.
func PresetNames() []string {
	presets := Presets()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
