package pixelbody

import "github.com/go-gl/mathgl/mgl32"

// unionFind is a standard union-by-rank, path-compressing disjoint-set
// structure used to find 4-connected components in a shape mask.
type unionFind struct {
	parent []int
	rank   []uint8
}

func newUnionFind(size int) *unionFind {
	uf := &unionFind{parent: make([]int, size), rank: make([]uint8, size)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	root := x
	for uf.parent[root] != root {
		root = uf.parent[root]
	}
	for uf.parent[x] != root {
		next := uf.parent[x]
		uf.parent[x] = root
		x = next
	}
	return root
}

func (uf *unionFind) union(x, y int) {
	rx, ry := uf.find(x), uf.find(y)
	if rx == ry {
		return
	}
	switch {
	case uf.rank[rx] < uf.rank[ry]:
		uf.parent[rx] = ry
	case uf.rank[rx] > uf.rank[ry]:
		uf.parent[ry] = rx
	default:
		uf.parent[ry] = rx
		uf.rank[rx]++
	}
}

// connectedComponent is one 4-connected region of a shape mask, in
// body-local pixel coordinates.
type connectedComponent struct {
	minX, minY    int
	width, height int
	cells         [][2]int
}

func unionAdjacentCells(uf *unionFind, mask []bool, w, h int) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if !mask[idx] {
				continue
			}
			if x+1 < w && mask[idx+1] {
				uf.union(idx, idx+1)
			}
			if y+1 < h && mask[idx+w] {
				uf.union(idx, idx+w)
			}
		}
	}
}

// findConnectedComponents returns every 4-connected region of set cells in
// mask, largest first.
func findConnectedComponents(mask []bool, w, h int) []connectedComponent {
	if w*h == 0 {
		return nil
	}
	uf := newUnionFind(w * h)
	unionAdjacentCells(uf, mask, w, h)

	groups := make(map[int][][2]int)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if !mask[idx] {
				continue
			}
			root := uf.find(idx)
			groups[root] = append(groups[root], [2]int{x, y})
		}
	}

	components := make([]connectedComponent, 0, len(groups))
	for _, cells := range groups {
		minX, minY := cells[0][0], cells[0][1]
		maxX, maxY := minX, minY
		for _, c := range cells {
			if c[0] < minX {
				minX = c[0]
			}
			if c[0] > maxX {
				maxX = c[0]
			}
			if c[1] < minY {
				minY = c[1]
			}
			if c[1] > maxY {
				maxY = c[1]
			}
		}
		components = append(components, connectedComponent{
			minX: minX, minY: minY,
			width: maxX - minX + 1, height: maxY - minY + 1,
			cells: cells,
		})
	}

	for i := 1; i < len(components); i++ {
		for j := i; j > 0 && len(components[j].cells) > len(components[j-1].cells); j-- {
			components[j], components[j-1] = components[j-1], components[j]
		}
	}
	return components
}

// Split checks b's shape mask for disconnected regions. It returns:
//   - (nil, true)  if the body has zero live cells (caller should despawn it)
//   - (nil, false) if the body is a single connected piece (no change needed)
//   - (fragments, false) if it has fragmented into 2+ pieces (caller should
//     despawn b and spawn the returned fragments, assigning each a fresh
//     StableID per the "fresh id per fragment" policy)
//
// Fragment pose is computed from the component's centroid (in body-local
// space) carried through b's last blit transform, and each fragment
// inherits b's linear/angular velocity.
func Split(b *PixelBody) (fragments []*PixelBody, despawn bool) {
	components := findConnectedComponents(b.ShapeMask, b.Width, b.Height)
	if len(components) == 0 {
		return nil, true
	}
	if len(components) == 1 {
		return nil, false
	}

	fragments = make([]*PixelBody, 0, len(components))
	for _, comp := range components {
		frag := New(0, comp.width, comp.height) // StableID assigned by the caller
		for _, c := range comp.cells {
			lx, ly := c[0]-comp.minX, c[1]-comp.minY
			p, _ := b.Get(c[0], c[1])
			frag.Set(lx, ly, p)
		}
		centroidLocal := [2]float32{
			float32(comp.minX) + float32(comp.width)/2,
			float32(comp.minY) + float32(comp.height)/2,
		}
		frag.LinearVelocity = b.LinearVelocity
		frag.AngularVelocity = b.AngularVelocity
		frag.lastTransform = fragmentPose(b, centroidLocal)
		fragments = append(fragments, frag)
	}
	return fragments, false
}

// fragmentPose computes a fragment's initial world pose: the parent's last
// blit transform applied to the component centroid (in parent-local space),
// keeping the parent's rotation.
func fragmentPose(parent *PixelBody, centroidLocal [2]float32) Transform {
	local := mgl32.Vec2{centroidLocal[0] - parent.Origin[0], centroidLocal[1] - parent.Origin[1]}
	rot := parent.lastTransform.Rotation
	pos := mgl32.Rotate2D(rot).Mul2x1(local).Add(parent.lastTransform.Position)
	return Transform{Position: pos, Rotation: rot}
}
