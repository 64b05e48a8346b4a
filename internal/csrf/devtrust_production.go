//go:build production

package csrf

const localhostTrustCompiled = false
