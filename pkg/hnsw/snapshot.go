package hnsw

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"sort"

	"github.com/annexsearch/vecann/internal/quantize"
	"github.com/annexsearch/vecann/pkg/codec"
	"github.com/annexsearch/vecann/pkg/kernel"
	"github.com/annexsearch/vecann/pkg/vecerr"
)

// Binary snapshot format (spec.md §4.7), little-endian throughout:
//
//	magic          [4]byte  "HNSW"
//	version        uint8
//	dimension      uint16
//	metric         uint8
//	quantization    uint8
//	m              uint16
//	efConstruction uint16
//	efSearch       uint16
//	topLayer       uint8
//	entryPoint     uint64   (all-ones sentinel 0xFFFFFFFFFFFFFFFF if empty)
//	nodeCount      uint32
//	calibrationLen uint32   (extension beyond spec.md §4.7: sealed Scalar8
//	                          per-dimension (min,max) calibration, 0 for
//	                          None/Binary or an untrained Scalar8 index —
//	                          see DESIGN.md's Open Question on calibration
//	                          placement)
//	calibration    [calibrationLen]byte
//	[nodeCount records, sorted ascending by id]:
//	  id           uint64
//	  level        uint8
//	  vector       codec payload (header + payload; the payload's own
//	               header.Quantization says whether this particular node
//	               is still full-precision or has been quantized, since
//	               a Scalar8 index may hold a mix of both before its
//	               training threshold is reached)
//	  [level+1 layers]:
//	    count      uint16
//	    neighbors  [count]uint64
//	crc32          uint32  (IEEE, over every byte preceding it)
//
// Restore never partially applies: the entire buffer is validated (magic,
// version, structural bounds, crc32) before any node is installed, and a
// validation failure returns an error and no index.

var snapshotMagic = [4]byte{'H', 'N', 'S', 'W'}

const (
	snapshotVersion  = 1
	snapshotFixedHdr = 4 + 1 + 2 + 1 + 1 + 2 + 2 + 2 + 1 + 8 + 4 // 28 bytes
	emptyEntrySentinel = ^uint64(0)
)

// Snapshot serializes the index to a self-contained byte slice.
func (idx *Index) Snapshot() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var buf bytes.Buffer
	hdr := make([]byte, snapshotFixedHdr)
	copy(hdr[0:4], snapshotMagic[:])
	hdr[4] = snapshotVersion
	binary.LittleEndian.PutUint16(hdr[5:7], uint16(idx.dimension))
	hdr[7] = uint8(idx.metric)
	hdr[8] = uint8(idx.quantization)
	binary.LittleEndian.PutUint16(hdr[9:11], uint16(idx.m))
	binary.LittleEndian.PutUint16(hdr[11:13], uint16(idx.efConstruction))
	binary.LittleEndian.PutUint16(hdr[13:15], uint16(idx.efSearch))
	if idx.hasEntry {
		hdr[15] = uint8(idx.topLayer)
	}
	entryPoint := emptyEntrySentinel
	if idx.hasEntry {
		entryPoint = idx.entryPoint
	}
	binary.LittleEndian.PutUint64(hdr[16:24], entryPoint)
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(len(idx.nodes)))
	buf.Write(hdr)

	var calibration []byte
	if idx.quantization == codec.Scalar8 && idx.scalarQuant != nil {
		calibration = idx.scalarQuant.CalibrationBytes()
	}
	var calibLenBuf [4]byte
	binary.LittleEndian.PutUint32(calibLenBuf[:], uint32(len(calibration)))
	buf.Write(calibLenBuf[:])
	buf.Write(calibration)

	ids := make([]uint64, 0, len(idx.nodes))
	for id := range idx.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		node := idx.nodes[id]
		var rec [9]byte
		binary.LittleEndian.PutUint64(rec[0:8], id)
		rec[8] = uint8(node.level)
		buf.Write(rec[:])

		payload, err := encodeNodePayload(idx.quantization, idx.dimension, node)
		if err != nil {
			return nil, vecerr.Wrapf("hnsw.Snapshot", vecerr.ErrBadHeader, "encoding node %d: %v", id, err)
		}
		buf.Write(payload)

		for layer := 0; layer <= node.level; layer++ {
			nbrs := node.Neighbors(layer)
			var countBuf [2]byte
			binary.LittleEndian.PutUint16(countBuf[:], uint16(len(nbrs)))
			buf.Write(countBuf[:])
			for _, nid := range nbrs {
				var idBuf [8]byte
				binary.LittleEndian.PutUint64(idBuf[:], nid)
				buf.Write(idBuf[:])
			}
		}
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], sum)
	buf.Write(crcBuf[:])

	return buf.Bytes(), nil
}

// encodeNodePayload encodes a node's vector payload per its own storage
// state: quantized nodes (code != nil) use the index's configured
// quantization kind, unquantized nodes (a Scalar8 index whose training
// threshold hasn't been reached yet) fall back to a None payload.
func encodeNodePayload(quantization codec.Quantization, dimension int, node *Node) ([]byte, error) {
	if node.code != nil {
		return codec.EncodeQuantized(node.code, quantization, dimension)
	}
	return codec.EncodeFloat32(node.vector, 0, false)
}

// Restore rebuilds an index from a Snapshot-produced buffer. It validates
// the crc32 and every structural invariant before installing anything;
// on any failure it returns an error and no index.
func Restore(data []byte) (*Index, error) {
	if len(data) < snapshotFixedHdr+4+4 {
		return nil, vecerr.Wrap("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "buffer shorter than fixed header + calibration length + crc")
	}

	body := data[:len(data)-4]
	wantCRC := binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return nil, vecerr.Wrap("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "crc32 mismatch")
	}

	if !bytes.Equal(data[0:4], snapshotMagic[:]) {
		return nil, vecerr.Wrap("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "bad magic")
	}
	if data[4] != snapshotVersion {
		return nil, vecerr.Wrapf("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "unknown version %d", data[4])
	}
	dimension := int(binary.LittleEndian.Uint16(data[5:7]))
	metric := kernel.Metric(data[7])
	quantization := codec.Quantization(data[8])
	m := int(binary.LittleEndian.Uint16(data[9:11]))
	efConstruction := int(binary.LittleEndian.Uint16(data[11:13]))
	efSearch := int(binary.LittleEndian.Uint16(data[13:15]))
	topLayer := int(data[15])
	entryPoint := binary.LittleEndian.Uint64(data[16:24])
	hasEntry := entryPoint != emptyEntrySentinel
	if !hasEntry {
		entryPoint = 0
		topLayer = -1
	}
	nodeCount := binary.LittleEndian.Uint32(data[24:28])

	r := bytes.NewReader(data[snapshotFixedHdr : len(data)-4])

	var calibLenBuf [4]byte
	if _, err := io.ReadFull(r, calibLenBuf[:]); err != nil {
		return nil, vecerr.Wrapf("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "reading calibration length: %v", err)
	}
	calibLen := binary.LittleEndian.Uint32(calibLenBuf[:])
	calibration := make([]byte, calibLen)
	if _, err := io.ReadFull(r, calibration); err != nil {
		return nil, vecerr.Wrapf("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "reading calibration bytes: %v", err)
	}

	cfg := Config{M: m, EfConstruction: efConstruction, EfSearch: efSearch, Metric: metric, Quantization: quantization}
	idx, err := New(cfg)
	if err != nil {
		return nil, vecerr.Wrapf("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "rebuilding config: %v", err)
	}
	idx.dimension = dimension

	switch quantization {
	case codec.Scalar8:
		if calibLen > 0 {
			q, err := quantize.LoadScalar8Calibration(calibration)
			if err != nil {
				return nil, vecerr.Wrapf("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "loading scalar8 calibration: %v", err)
			}
			idx.installScalarCalibration(q)
		}
	case codec.Binary:
		if dimension > 0 {
			idx.installBinaryQuantizer(dimension)
		}
	}

	nodes := make(map[uint64]*Node, nodeCount)
	maxID := uint64(0)
	prevID := uint64(0)

	for i := uint32(0); i < nodeCount; i++ {
		var rec [9]byte
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return nil, vecerr.Wrapf("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "reading node %d header: %v", i, err)
		}
		id := binary.LittleEndian.Uint64(rec[0:8])
		if i > 0 && id <= prevID {
			return nil, vecerr.Wrapf("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "node records not sorted ascending by id at index %d", i)
		}
		prevID = id
		level := int(rec[8])
		if id > maxID {
			maxID = id
		}

		node, err := decodeNodePayload(r, id, dimension, level)
		if err != nil {
			return nil, err
		}

		for layer := 0; layer <= level; layer++ {
			var countBuf [2]byte
			if _, err := io.ReadFull(r, countBuf[:]); err != nil {
				return nil, vecerr.Wrapf("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "reading node %d layer %d count: %v", id, layer, err)
			}
			count := binary.LittleEndian.Uint16(countBuf[:])
			nbrs := make([]uint64, count)
			for j := range nbrs {
				var idBuf [8]byte
				if _, err := io.ReadFull(r, idBuf[:]); err != nil {
					return nil, vecerr.Wrapf("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "reading node %d layer %d neighbor %d: %v", id, layer, j, err)
				}
				nbrs[j] = binary.LittleEndian.Uint64(idBuf[:])
			}
			node.SetNeighbors(layer, nbrs)
		}
		nodes[id] = node
	}

	if r.Len() != 0 {
		return nil, vecerr.Wrap("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "trailing bytes after last node record")
	}

	if err := validateRestoredGraph(nodes, hasEntry, entryPoint, topLayer, idx.m, idx.m0); err != nil {
		return nil, err
	}

	idx.nodes = nodes
	idx.hasEntry = hasEntry
	idx.entryPoint = entryPoint
	idx.topLayer = topLayer
	idx.size = int64(len(nodes))
	idx.nodeCounter = maxID

	return idx, nil
}

// decodeNodePayload reads one node's codec-framed vector payload from r and
// builds the Node, routing to the float or quantized-code path per the
// payload's own header.Quantization field (not the index's global
// quantization config) since a Scalar8 index may hold a mix of quantized
// and still-unquantized nodes.
func decodeNodePayload(r *bytes.Reader, id uint64, dimension, level int) (*Node, error) {
	header := make([]byte, codec.HeaderSize())
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, vecerr.Wrapf("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "reading node %d vector header: %v", id, err)
	}
	h, err := codec.PeekHeader(header, dimension)
	if err != nil {
		return nil, vecerr.Wrapf("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "node %d vector header: %v", id, err)
	}

	payloadLen := int(h.Dimension) * 4
	if h.Quantization != codec.None {
		payloadLen = codec.QuantizedPayloadLen(h.Quantization, int(h.Dimension))
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, vecerr.Wrapf("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "reading node %d vector payload: %v", id, err)
	}
	full := append(header, payload...)

	if h.Quantization == codec.None {
		vector, err := codec.DecodeFloat32(full, dimension)
		if err != nil {
			return nil, vecerr.Wrapf("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "decoding node %d vector: %v", id, err)
		}
		return NewNode(id, vector, level), nil
	}

	code, err := codec.DecodeQuantizedPayload(full, dimension, h.Quantization)
	if err != nil {
		return nil, vecerr.Wrapf("hnsw.Restore", vecerr.ErrSnapshotCorrupt, "decoding node %d quantized code: %v", id, err)
	}
	node := NewNode(id, nil, level)
	node.code = code
	return node, nil
}

// validateRestoredGraph checks Inv-A (mutual neighbors), Inv-B (degree
// bound, against m0 at layer 0 and m above), and Inv-C (entry point is the
// max-level node, ties broken by smallest id) before a restored graph is
// trusted.
func validateRestoredGraph(nodes map[uint64]*Node, hasEntry bool, entryPoint uint64, topLayer int, m, m0 int) error {
	if !hasEntry {
		if len(nodes) != 0 {
			return vecerr.Wrap("hnsw.Restore", vecerr.ErrIndexCorrupt, "no entry point but nodes present")
		}
		return nil
	}
	if _, ok := nodes[entryPoint]; !ok {
		return vecerr.Wrapf("hnsw.Restore", vecerr.ErrIndexCorrupt, "entry point %d is not a known node", entryPoint)
	}

	maxLevel := -1
	var bestID uint64
	for id, n := range nodes {
		if n.level > maxLevel || (n.level == maxLevel && id < bestID) {
			maxLevel = n.level
			bestID = id
		}
	}
	if maxLevel != topLayer {
		return vecerr.Wrapf("hnsw.Restore", vecerr.ErrIndexCorrupt, "topLayer %d does not match max node level %d", topLayer, maxLevel)
	}
	if bestID != entryPoint {
		return vecerr.Wrapf("hnsw.Restore", vecerr.ErrIndexCorrupt, "entry point %d is not the max-level/min-id node %d", entryPoint, bestID)
	}

	for id, n := range nodes {
		for layer := 0; layer <= n.level; layer++ {
			nbrs := n.Neighbors(layer)
			maxDegree := m
			if layer == 0 {
				maxDegree = m0
			}
			if len(nbrs) > maxDegree {
				return vecerr.Wrapf("hnsw.Restore", vecerr.ErrIndexCorrupt, "node %d has %d neighbors at layer %d, exceeding Mmax=%d", id, len(nbrs), layer, maxDegree)
			}
			for _, nbrID := range nbrs {
				nbr, ok := nodes[nbrID]
				if !ok {
					return vecerr.Wrapf("hnsw.Restore", vecerr.ErrIndexCorrupt, "node %d references unknown neighbor %d at layer %d", id, nbrID, layer)
				}
				if !nbr.HasNeighbor(layer, id) {
					return vecerr.Wrapf("hnsw.Restore", vecerr.ErrIndexCorrupt, "neighbor link %d->%d at layer %d is not mutual", id, nbrID, layer)
				}
			}
		}
	}
	return nil
}
