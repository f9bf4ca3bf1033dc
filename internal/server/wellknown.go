package server

import "net/http"

// handleAASA serves the Apple App Site Association file that enables
// Universal Links and App Clips for the provider pages.
func (s *Server) handleAASA(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"applinks": map[string]any{
			"details": []map[string]any{
				{
					"appIDs": []string{s.cfg.IOSAppID},
					"components": []map[string]any{
						{
							"/":       "/providers/*",
							"comment": "Matches all provider paths",
						},
						{
							"/":       "/*",
							"?":       map[string]string{"link": "?*"},
							"comment": "Matches any URL with a 'link' query parameter",
						},
					},
				},
			},
		},
		"appclips": map[string]any{
			"apps": []string{s.cfg.IOSAppID + ".Clip"},
		},
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleAssetLinks serves the Android App Links verification file, one entry
// per configured signing-certificate fingerprint.
func (s *Server) handleAssetLinks(w http.ResponseWriter, r *http.Request) {
	entries := make([]map[string]any, 0, len(s.cfg.AndroidCertFingerprints))
	for _, fp := range s.cfg.AndroidCertFingerprints {
		entries = append(entries, map[string]any{
			"relation": []string{"delegate_permission/common.handle_all_urls"},
			"target": map[string]any{
				"namespace":                "android_app",
				"package_name":             s.cfg.AndroidPackage,
				"sha256_cert_fingerprints": []string{fp},
			},
		})
	}
	writeJSON(w, http.StatusOK, entries)
}
