package esplora

import "errors"

var errUnrecognizedAddress = errors.New("esplora: address not recognized on any known network")
