//go:build !production

package csrf

// localhostTrustCompiled gates the development localhost relaxation.
// Production builds (-tags production) compile it out.
const localhostTrustCompiled = true
