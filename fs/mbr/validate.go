package mbr

import (
	"github.com/armcore/kernelcore/errkernel"
	"github.com/hashicorp/go-multierror"
)

// ValidateAll decodes sector the same way Decode does, but never stops at
// the first bad partition slot: it scans all four, collecting every
// indicator error it finds, and returns them together via
// *multierror.Error. Decode's fail-fast behavior is what the mount path
// actually uses (one bad slot is enough to refuse the volume); ValidateAll
// is the diagnostic entry point — cmd/fsinspect's fsck command uses it to
// report everything wrong with a boot sector in one pass instead of making
// an operator fix and rerun four times.
func ValidateAll(sector []byte) (*MasterBootRecord, error) {
	if len(sector) < signatureOffset+2 {
		return nil, errkernel.ErrInvalidInput.WithMessage("sector shorter than an MBR")
	}

	var result *multierror.Error
	if sector[signatureOffset] != signatureLow || sector[signatureOffset+1] != signatureHigh {
		result = multierror.Append(result, errkernel.ErrBadSignature)
	}

	var mbr MasterBootRecord
	for i := 0; i < numPartitions; i++ {
		offset := bootCodeSize + i*partitionEntrySize
		entry := decodePartitionEntry(sector[offset : offset+partitionEntrySize])
		if !entry.ValidIndicator() {
			result = multierror.Append(result, errkernel.ErrUnknownBootIndicator.WithMessage(partitionIndexMessage(i)))
			continue
		}
		mbr.Partitions[i] = entry
	}

	if result != nil {
		result.ErrorFormat = func(errs []error) string {
			return formatErrors(errs)
		}
		return nil, result
	}
	return &mbr, nil
}

func formatErrors(errs []error) string {
	out := "mbr: validation failed:"
	for _, err := range errs {
		out += "\n  - " + err.Error()
	}
	return out
}
