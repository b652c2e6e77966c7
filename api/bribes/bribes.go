// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bribes

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/solace-fi/solace-native/api/restutil"
	"github.com/solace-fi/solace-native/bribe"
	"github.com/solace-fi/solace-native/native"
)

type Bribes struct {
	controller *bribe.Controller
}

func New(controller *bribe.Controller) *Bribes {
	return &Bribes{controller}
}

func addrVar(req *http.Request, name string) (native.Address, error) {
	addr, err := native.ParseAddress(mux.Vars(req)[name])
	if err != nil {
		return native.Address{}, restutil.BadRequest(errors.WithMessage(err, name))
	}
	return *addr, nil
}

func (b *Bribes) handleGetPool(w http.ResponseWriter, req *http.Request) error {
	gaugeID, err := strconv.ParseUint(mux.Vars(req)["gauge"], 10, 64)
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "gauge"))
	}
	tok, err := addrVar(req, "token")
	if err != nil {
		return err
	}
	amount, err := b.controller.PoolOf(gaugeID, tok)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, map[string]string{"amount": amount.String()})
}

func (b *Bribes) handleGetClaimable(w http.ResponseWriter, req *http.Request) error {
	voter, err := addrVar(req, "voter")
	if err != nil {
		return err
	}
	tok, err := addrVar(req, "token")
	if err != nil {
		return err
	}
	amount, err := b.controller.Claimable(voter, tok)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, map[string]string{"amount": amount.String()})
}

func (b *Bribes) handleGetWhitelisted(w http.ResponseWriter, req *http.Request) error {
	tok, err := addrVar(req, "token")
	if err != nil {
		return err
	}
	ok, err := b.controller.IsBribeToken(tok)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, map[string]bool{"whitelisted": ok})
}

func (b *Bribes) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/pools/{gauge}/{token}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(b.handleGetPool))
	sub.Path("/claimable/{voter}/{token}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(b.handleGetClaimable))
	sub.Path("/whitelist/{token}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(b.handleGetWhitelisted))
}
