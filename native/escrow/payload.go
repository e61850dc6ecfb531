package escrow

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// The fill-time extra data uses the same ABI tuple layouts as the deployed
// contract so payloads produced by existing tooling decode unchanged:
//
//	onchain approval: (address destination, bytes data, bytes expectedResult)
//	api approval:     (string source, bytes encryptedSecretsUrls,
//	                   string[] args, bytes[] bytesArgs, bytes32 requestId)
var (
	onchainApprovalArgs abi.Arguments
	apiApprovalArgs     abi.Arguments
)

func init() {
	addressT, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	bytesT, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	stringT, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	stringSliceT, err := abi.NewType("string[]", "", nil)
	if err != nil {
		panic(err)
	}
	bytesSliceT, err := abi.NewType("bytes[]", "", nil)
	if err != nil {
		panic(err)
	}
	bytes32T, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		panic(err)
	}
	onchainApprovalArgs = abi.Arguments{
		{Name: "destination", Type: addressT},
		{Name: "data", Type: bytesT},
		{Name: "expectedResult", Type: bytesT},
	}
	apiApprovalArgs = abi.Arguments{
		{Name: "source", Type: stringT},
		{Name: "encryptedSecretsUrls", Type: bytesT},
		{Name: "args", Type: stringSliceT},
		{Name: "bytesArgs", Type: bytesSliceT},
		{Name: "requestId", Type: bytes32T},
	}
}

// EncodeOnchainApproval packs the call-verification payload for use as the
// extra data argument of FillListing.
func EncodeOnchainApproval(d *OnchainApprovalData) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("escrow: nil onchain approval data")
	}
	return onchainApprovalArgs.Pack(common.BytesToAddress(d.Destination[:]), d.Data, d.ExpectedResult)
}

func decodeOnchainApproval(extraData []byte) (*OnchainApprovalData, error) {
	values, err := onchainApprovalArgs.Unpack(extraData)
	if err != nil {
		return nil, ErrInvalidExtraData
	}
	destination, ok := values[0].(common.Address)
	if !ok {
		return nil, ErrInvalidExtraData
	}
	data, ok := values[1].([]byte)
	if !ok {
		return nil, ErrInvalidExtraData
	}
	expected, ok := values[2].([]byte)
	if !ok {
		return nil, ErrInvalidExtraData
	}
	if destination == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if len(expected) == 0 {
		return nil, ErrInvalidExtraData
	}
	decoded := &OnchainApprovalData{
		Data:           data,
		ExpectedResult: expected,
	}
	copy(decoded.Destination[:], destination.Bytes())
	return decoded, nil
}

// EncodeAPIApproval packs the oracle-verification payload for use as the extra
// data argument of FillListing. The request id slot must be zero; it is filled
// in by the engine once a request is dispatched.
func EncodeAPIApproval(d *APIApprovalData) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("escrow: nil api approval data")
	}
	return apiApprovalArgs.Pack(d.Source, d.EncryptedSecretsURLs, d.Args, d.BytesArgs, d.RequestID)
}

func decodeAPIApproval(extraData []byte) (*APIApprovalData, error) {
	values, err := apiApprovalArgs.Unpack(extraData)
	if err != nil {
		return nil, ErrInvalidExtraData
	}
	source, ok := values[0].(string)
	if !ok || source == "" {
		return nil, ErrInvalidExtraData
	}
	secrets, ok := values[1].([]byte)
	if !ok {
		return nil, ErrInvalidExtraData
	}
	args, ok := values[2].([]string)
	if !ok {
		return nil, ErrInvalidExtraData
	}
	bytesArgs, ok := values[3].([][]byte)
	if !ok {
		return nil, ErrInvalidExtraData
	}
	requestID, ok := values[4].([32]byte)
	if !ok {
		return nil, ErrInvalidExtraData
	}
	if requestID != ([32]byte{}) {
		// Outstanding request ids are engine-assigned, never caller-supplied.
		return nil, ErrInvalidExtraData
	}
	return &APIApprovalData{
		Source:               source,
		EncryptedSecretsURLs: secrets,
		Args:                 args,
		BytesArgs:            bytesArgs,
	}, nil
}
