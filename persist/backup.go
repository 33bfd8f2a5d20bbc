package persist

import (
	"encoding/json"
	"fmt"

	"github.com/breez/breez-sdk-liquid-core/swap"
)

// backupEnvelopeVersion is bumped whenever the backup JSON shape changes
// incompatibly; ImportBackup refuses envelopes from a newer version than it
// understands.
const backupEnvelopeVersion = 1

// backupEnvelope is the versioned JSON dump of local records, independent
// of the external sync service.
type backupEnvelope struct {
	Version int             `json:"version"`
	Swaps   []*swap.Record  `json:"swaps"`
}

// ExportBackup dumps every swap row as a versioned JSON envelope.
func (p *Persister) ExportBackup() ([]byte, error) {
	swaps, err := p.GetAllSwaps()
	if err != nil {
		return nil, err
	}
	env := backupEnvelope{Version: backupEnvelopeVersion, Swaps: swaps}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, wrapPersistErr("marshalling backup", err)
	}
	return data, nil
}

// ImportBackup loads a backup produced by ExportBackup, upserting every
// swap row it contains. Rows already present locally with the same or a
// higher version are left untouched — import never regresses a swap's recorded state.
func (p *Persister) ImportBackup(data []byte) error {
	var env backupEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return wrapPersistErr("unmarshalling backup", err)
	}
	if env.Version > backupEnvelopeVersion {
		return wrapPersistErr("importing backup", fmt.Errorf("unsupported backup version %d", env.Version))
	}

	existing, err := p.GetAllSwaps()
	if err != nil {
		return err
	}
	versionByID := make(map[string]int64, len(existing))
	for _, r := range existing {
		versionByID[r.ID()] = r.Version()
	}

	for _, r := range env.Swaps {
		if localVersion, ok := versionByID[r.ID()]; ok && localVersion >= r.Version() {
			continue
		}
		if err := p.PutSwap(r); err != nil {
			return err
		}
	}
	return nil
}
