// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package locks

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/solace-fi/solace-native/api/restutil"
	"github.com/solace-fi/solace-native/locker"
	"github.com/solace-fi/solace-native/native"
)

type Locks struct {
	locker *locker.Locker
}

func New(lk *locker.Locker) *Locks {
	return &Locks{lk}
}

// Lock is the JSON shape of one lock. Amounts are decimal strings.
type Lock struct {
	ID        uint64 `json:"id"`
	Owner     string `json:"owner"`
	Amount    string `json:"amount"`
	End       uint64 `json:"end"`
	VotePower string `json:"votePower"`
}

// timeParam reads the optional "now" query parameter, defaulting to
// wall time, so past and future power curves can be inspected.
func timeParam(req *http.Request) (uint64, error) {
	raw := req.URL.Query().Get("now")
	if raw == "" {
		return uint64(time.Now().Unix()), nil
	}
	now, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, restutil.BadRequest(errors.WithMessage(err, "now"))
	}
	return now, nil
}

func (l *Locks) lockByID(id uint64, now uint64) (*Lock, error) {
	lock, err := l.locker.Get(id)
	if err != nil {
		return nil, restutil.NotFound(err)
	}
	power, err := l.locker.VotePowerOf(id, now)
	if err != nil {
		return nil, err
	}
	return &Lock{
		ID:        id,
		Owner:     lock.Owner.String(),
		Amount:    lock.Amount.String(),
		End:       lock.End,
		VotePower: power.String(),
	}, nil
}

func (l *Locks) handleGetLock(w http.ResponseWriter, req *http.Request) error {
	id, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "id"))
	}
	now, err := timeParam(req)
	if err != nil {
		return err
	}
	lock, err := l.lockByID(id, now)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, lock)
}

func (l *Locks) handleGetLocksOf(w http.ResponseWriter, req *http.Request) error {
	owner, err := native.ParseAddress(mux.Vars(req)["owner"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "owner"))
	}
	now, err := timeParam(req)
	if err != nil {
		return err
	}
	ids, err := l.locker.LocksOf(*owner)
	if err != nil {
		return err
	}
	out := make([]*Lock, 0, len(ids))
	for _, id := range ids {
		lock, err := l.lockByID(id, now)
		if err != nil {
			return err
		}
		out = append(out, lock)
	}
	return restutil.WriteJSON(w, out)
}

func (l *Locks) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/{id:[0-9]+}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(l.handleGetLock))
	sub.Path("/owner/{owner}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(l.handleGetLocksOf))
}
