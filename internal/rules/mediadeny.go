package rules

// MediaDenyList suppresses media reports from ad and tracking hosts
// regardless of user configuration.
var MediaDenyList = []string{
	"*://*.doubleclick.net/*",
	"*://*.googlesyndication.com/*",
	"*://*.googleadservices.com/*",
	"*://imasdk.googleapis.com/*",
	"*://*.2mdn.net/*",
	"*://*.adnxs.com/*",
	"*://*.moatads.com/*",
	"*://*.amazon-adsystem.com/*",
	"*://*.taboola.com/*",
	"*://*.outbrain.com/*",
}

// IsMediaHostDenied reports whether rawURL belongs to a known non-downloadable
// media host.
func IsMediaHostDenied(rawURL string) bool {
	return IsBlacklisted(rawURL, MediaDenyList)
}
