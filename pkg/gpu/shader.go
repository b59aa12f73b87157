package gpu

// yuvToRGBShader converts batched YUV420P planes to packed RGBA words.
// Storage buffers cannot hold u8 in WGSL, so the planes arrive as u32
// words and bytes are extracted by shift. The dispatch grid tiles x/y
// spatially (16x16 per workgroup) and indexes the frame within the
// batch on z. Plane sizes arrive as uniforms; pad bytes past the real
// plane data are never read.
const yuvToRGBShader = `
struct Params {
	width : u32,
	height : u32,
	y_size : u32,
	uv_size : u32,
};

@group(0) @binding(0) var<storage, read> y_plane : array<u32>;
@group(0) @binding(1) var<storage, read> u_plane : array<u32>;
@group(0) @binding(2) var<storage, read> v_plane : array<u32>;
@group(0) @binding(3) var<storage, read_write> output : array<u32>;
@group(0) @binding(4) var<uniform> params : Params;

fn plane_byte_y(index: u32) -> f32 {
	let word = y_plane[index / 4u];
	return f32((word >> ((index % 4u) * 8u)) & 0xFFu);
}

fn plane_byte_u(index: u32) -> f32 {
	let word = u_plane[index / 4u];
	return f32((word >> ((index % 4u) * 8u)) & 0xFFu);
}

fn plane_byte_v(index: u32) -> f32 {
	let word = v_plane[index / 4u];
	return f32((word >> ((index % 4u) * 8u)) & 0xFFu);
}

@compute @workgroup_size(16, 16, 1)
fn main(@builtin(global_invocation_id) gid : vec3<u32>) {
	let x = gid.x;
	let y = gid.y;
	let f = gid.z;

	if (x >= params.width || y >= params.height) {
		return;
	}

	let y_index = f * params.y_size + y * params.width + x;
	let uv_index = f * params.uv_size + (y / 2u) * (params.width / 2u) + (x / 2u);

	let luma = plane_byte_y(y_index);
	let cb = plane_byte_u(uv_index) - 128.0;
	let cr = plane_byte_v(uv_index) - 128.0;

	// ITU-R BT.601
	let r = clamp(luma + 1.402 * cr, 0.0, 255.0);
	let g = clamp(luma - 0.344136 * cb - 0.714136 * cr, 0.0, 255.0);
	let b = clamp(luma + 1.772 * cb, 0.0, 255.0);

	let rgba = u32(r) | (u32(g) << 8u) | (u32(b) << 16u) | (255u << 24u);
	output[f * params.y_size + y * params.width + x] = rgba;
}
`
