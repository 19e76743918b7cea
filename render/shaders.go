package render

// WGSL sources for the two instanced programs. Both share the frame uniform
// block at group 0 binding 0 and the feature-flag block at binding 1, so one
// bind group serves both pipelines.
//
// Node program: camera-facing quad per instance, expanded in the vertex
// stage from a unit quad indexed by vertex_index. Edge program: cubic bezier
// ribbon per instance, tessellated by vertex_index into segment quads; the
// two control points are derived from the endpoints in the vertex stage.

const frameUniformWGSL = `
struct FrameUniforms {
    view_proj : mat4x4<f32>,
    eye       : vec4<f32>,
    // x: time seconds, y: aspect, z: flow speed, w: pulse speed
    params    : vec4<f32>,
};

struct ConfigUniforms {
    // x: lighting, y: fresnel, z: pulse, w: entrance
    features  : vec4<f32>,
    // x: flow, y: max render distance, z: edge segments, w: unused
    features2 : vec4<f32>,
};

@group(0) @binding(0) var<uniform> frame : FrameUniforms;
@group(0) @binding(1) var<uniform> config : ConfigUniforms;
`

const nodeShaderWGSL = frameUniformWGSL + `
struct NodeIn {
    @location(0) pos_size  : vec4<f32>,
    @location(1) color     : vec4<f32>,
    @location(2) misc      : vec4<f32>, // x: selected, y: spawn age, z: weight
};

struct NodeOut {
    @builtin(position) clip : vec4<f32>,
    @location(0) color      : vec4<f32>,
    @location(1) uv         : vec2<f32>,
    @location(2) misc       : vec3<f32>, // x: selected, y: spawn, z: view dist
};

const QUAD = array<vec2<f32>, 6>(
    vec2<f32>(-1.0, -1.0), vec2<f32>(1.0, -1.0), vec2<f32>(-1.0, 1.0),
    vec2<f32>(-1.0, 1.0),  vec2<f32>(1.0, -1.0), vec2<f32>(1.0, 1.0),
);

@vertex
fn vs_node(@builtin(vertex_index) vi : u32, in : NodeIn) -> NodeOut {
    var out : NodeOut;
    let corner = QUAD[vi];

    var size = in.pos_size.w;
    if (config.features.w > 0.5) {
        // Entrance: overshoot slightly, then settle.
        let t = clamp(in.misc.y, 0.0, 1.0);
        size = size * (t * (1.2 - 0.2 * t));
    }
    if (config.features.z > 0.5 && in.misc.x > 0.5) {
        // Pulse selected nodes.
        size = size * (1.0 + 0.12 * sin(frame.params.x * frame.params.w));
    }

    let center = vec4<f32>(in.pos_size.xyz, 1.0);
    var clip = frame.view_proj * center;
    // Billboard in clip space: offset is screen-aligned by construction.
    clip.x = clip.x + corner.x * size * clip.w / (20.0 * frame.params.y);
    clip.y = clip.y + corner.y * size * clip.w / 20.0;

    out.clip = clip;
    out.color = in.color;
    out.uv = corner;
    out.misc = vec3<f32>(in.misc.x, in.misc.y, distance(frame.eye.xyz, in.pos_size.xyz));
    return out;
}

@fragment
fn fs_node(in : NodeOut) -> @location(0) vec4<f32> {
    let r2 = dot(in.uv, in.uv);
    if (r2 > 1.0) {
        discard;
    }

    var color = in.color.rgb;
    let z = sqrt(max(1.0 - r2, 0.0));
    let normal = vec3<f32>(in.uv.x, in.uv.y, z);

    if (config.features.x > 0.5) {
        // Half-lambert from a fixed key light.
        let l = normalize(vec3<f32>(0.4, 0.7, 0.6));
        let ndl = dot(normal, l) * 0.5 + 0.5;
        color = color * (0.35 + 0.65 * ndl);
    }
    if (config.features.y > 0.5) {
        // Fresnel rim.
        let rim = pow(1.0 - z, 2.0);
        color = color + vec3<f32>(0.25, 0.35, 0.5) * rim;
    }
    if (in.misc.x > 0.5) {
        // Selection emissive lift.
        color = color + vec3<f32>(0.35, 0.30, 0.10);
    }

    // Distance fade toward the render limit.
    let fade = 1.0 - smoothstep(config.features2.y * 0.7, config.features2.y, in.misc.z);
    let edge = 1.0 - smoothstep(0.8, 1.0, sqrt(r2));
    return vec4<f32>(color, in.color.a * edge * fade);
}
`

const edgeShaderWGSL = frameUniformWGSL + `
struct EdgeIn {
    @location(0) a_width    : vec4<f32>, // endpoint A, ribbon width
    @location(1) b_strength : vec4<f32>, // endpoint B, strength
    @location(2) color      : vec4<f32>,
    @location(3) misc       : vec4<f32>, // x: selected, y: flow phase
};

struct EdgeOut {
    @builtin(position) clip : vec4<f32>,
    @location(0) color      : vec4<f32>,
    @location(1) t          : f32,       // parameter along the curve
    @location(2) misc       : vec3<f32>, // x: selected, y: phase, z: view dist
};

fn bezier(a : vec3<f32>, c1 : vec3<f32>, c2 : vec3<f32>, b : vec3<f32>, t : f32) -> vec3<f32> {
    let u = 1.0 - t;
    return u * u * u * a
        + 3.0 * u * u * t * c1
        + 3.0 * u * t * t * c2
        + t * t * t * b;
}

@vertex
fn vs_edge(@builtin(vertex_index) vi : u32, in : EdgeIn) -> EdgeOut {
    var out : EdgeOut;

    let segs = max(config.features2.z, 1.0);
    // Each segment is a quad of 6 vertices; within the quad, even vertices
    // sit at -w and odd at +w across the ribbon.
    let seg = f32(vi / 6u);
    let corner = vi % 6u;
    var ft = seg / segs;
    if (corner == 1u || corner == 4u || corner == 5u) {
        ft = (seg + 1.0) / segs;
    }
    var side = -1.0;
    if (corner == 2u || corner == 3u || corner == 5u) {
        side = 1.0;
    }

    let a = in.a_width.xyz;
    let b = in.b_strength.xyz;
    let lift = vec3<f32>(0.0, distance(a, b) * 0.15, 0.0);
    let c1 = mix(a, b, 1.0 / 3.0) + lift;
    let c2 = mix(a, b, 2.0 / 3.0) + lift;

    let p = bezier(a, c1, c2, b, ft);
    let clip = frame.view_proj * vec4<f32>(p, 1.0);

    // Screen-space ribbon width, constant in pixels.
    let px = in.a_width.w * clip.w / 600.0;
    var offset = vec2<f32>(0.0, side * px);

    out.clip = vec4<f32>(clip.x + offset.x, clip.y + offset.y, clip.z, clip.w);
    out.color = in.color;
    out.t = ft;
    out.misc = vec3<f32>(in.misc.x, in.misc.y, distance(frame.eye.xyz, p));
    return out;
}

@fragment
fn fs_edge(in : EdgeOut) -> @location(0) vec4<f32> {
    var color = in.color.rgb;
    var alpha = in.color.a;

    // Gradient: slightly brighter toward the target end.
    color = mix(color * 0.8, color * 1.2, in.t);

    if (config.features2.x > 0.5) {
        // Flow: a bright packet scrolling from source to target.
        let pos = fract(in.t - frame.params.x * frame.params.z + in.misc.y);
        let packet = smoothstep(0.0, 0.08, pos) * (1.0 - smoothstep(0.08, 0.25, pos));
        color = color + vec3<f32>(packet * 0.6);
        alpha = alpha + packet * 0.3;
    }
    if (in.misc.x > 0.5) {
        color = color + vec3<f32>(0.25, 0.22, 0.08);
    }

    let fade = 1.0 - smoothstep(config.features2.y * 0.7, config.features2.y, in.misc.z);
    if (fade <= 0.0) {
        discard;
    }
    return vec4<f32>(color, clamp(alpha, 0.0, 1.0) * fade);
}
`
